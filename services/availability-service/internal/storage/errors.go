package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFound maps a missing row to model.ErrNotFound and passes anything else
// through.
func notFound(err error) error {
	if IsNotFound(err) {
		return model.ErrNotFound
	}
	return err
}
