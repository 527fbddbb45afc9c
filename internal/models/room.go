package models

import "time"

// ChatRoom is a named room. Version guards structural changes against lost updates.
type ChatRoom struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ImageRef  string    `db:"image_ref" json:"image_ref,omitempty"`
	CreatorID int64     `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Active    bool      `db:"active" json:"active"`
	Version   int64     `db:"version" json:"version"`
}
