package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"room-chat-service/internal/apperrors"
)

// PostgresStore is the sqlx implementation of Store.
type PostgresStore struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Users() UserRepository       { return NewUserRepo(s.q) }
func (s *PostgresStore) Rooms() RoomRepository       { return NewRoomRepo(s.q) }
func (s *PostgresStore) Members() MemberRepository   { return NewMemberRepo(s.q) }
func (s *PostgresStore) Messages() MessageRepository { return NewMessageRepo(s.q) }

// WithinTx runs fn in a database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Transient(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperrors.Transient(err, "commit transaction")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapErr converts driver failures into the error taxonomy.
func mapErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return apperrors.Transient(err, "database unavailable")
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
