package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskpulse/pkg/metrics"
)

var ErrNotFound = errors.New("user not found")

// Repository resolves user contact details for durable delivery.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetEmail(ctx context.Context, userID int64) (string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("select", "users", time.Since(start))
	}()

	var email string
	err := r.db.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`,
		userID,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("querying user email: %w", err)
	}
	return email, nil
}
