package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/repository"
)

type pgRecipientRepository struct {
	db *pgxpool.Pool
}

// NewPgRecipientRepository creates the read-only view over the employee
// directory table maintained by the HR import pipeline.
func NewPgRecipientRepository(db *pgxpool.Pool) repository.RecipientRepository {
	return &pgRecipientRepository{db: db}
}

func (r *pgRecipientRepository) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT external_id, full_name, phone, department
		FROM recipients ORDER BY external_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.ExternalID, &rec.FullName, &rec.Phone, &rec.Department); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *pgRecipientRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Recipient, error) {
	var rec domain.Recipient
	err := r.db.QueryRow(ctx, `
		SELECT external_id, full_name, phone, department
		FROM recipients WHERE external_id = $1`, externalID,
	).Scan(&rec.ExternalID, &rec.FullName, &rec.Phone, &rec.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecipientNotFound
		}
		return nil, err
	}
	return &rec, nil
}
