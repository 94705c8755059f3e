package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrUnknownNumber is returned when no business owns a receiving number.
var ErrUnknownNumber = errors.New("business: unknown receiving number")

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NumberDirectory maps receiving phone numbers to their owning business.
type NumberDirectory struct {
	db rowQuerier
}

// NewNumberDirectory creates a number directory.
func NewNumberDirectory(db rowQuerier) *NumberDirectory {
	return &NumberDirectory{db: db}
}

// BusinessForNumber resolves the business that owns an E.164 number.
func (d *NumberDirectory) BusinessForNumber(ctx context.Context, phone string) (string, error) {
	var businessID string
	err := d.db.QueryRow(ctx, `
		SELECT business_id FROM business_numbers WHERE phone = $1`, phone).Scan(&businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownNumber
		}
		return "", fmt.Errorf("business: number lookup: %w", err)
	}
	return businessID, nil
}

// ListBusinessIDs returns every business with a provisioned number. Sweep
// loops iterate this set.
func (d *NumberDirectory) ListBusinessIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.Query(ctx, `
		SELECT DISTINCT business_id FROM business_numbers ORDER BY business_id`)
	if err != nil {
		return nil, fmt.Errorf("business: list businesses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("business: scan business id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("business: list businesses: %w", err)
	}
	return ids, nil
}
