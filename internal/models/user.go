package models

import "time"

// DefaultProfileColor is assigned when a user registers without one.
const DefaultProfileColor = "#4f85c8"

// User is a chat participant identified by a unique nickname.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Nickname     string    `db:"nickname" json:"nickname"`
	ProfileColor string    `db:"profile_color" json:"profile_color"`
	ProfileImage string    `db:"profile_image" json:"profile_image,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
}
