package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const businessColumns = `id, owner_id, name, legal_name, tax_id, company_type, location,
	payment_method_token, verified, created_at, updated_at`

// BusinessRepository handles business profile data operations
type BusinessRepository struct{}

// NewBusinessRepository creates a new business repository
func NewBusinessRepository() *BusinessRepository {
	return &BusinessRepository{}
}

// CreateBusiness inserts a business; one per owner
func (r *BusinessRepository) CreateBusiness(ctx context.Context, db DBExecutor, b *model.Business) error {
	query := `
		INSERT INTO businesses (` + businessColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := db.ExecContext(ctx, query,
		b.ID, b.OwnerID, b.Name, b.LegalName, b.TaxID, b.CompanyType, b.Location,
		b.PaymentMethodToken, b.Verified, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrDuplicateBusiness
		}
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

// GetBusiness retrieves a business by ID
func (r *BusinessRepository) GetBusiness(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Business, error) {
	return r.getBusiness(ctx, db, "id = $1", id, "")
}

// LockBusiness retrieves a business by ID with a row lock
func (r *BusinessRepository) LockBusiness(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Business, error) {
	return r.getBusiness(ctx, db, "id = $1", id, "FOR UPDATE")
}

// GetBusinessByOwner retrieves the business registered by an owner
func (r *BusinessRepository) GetBusinessByOwner(ctx context.Context, db DBExecutor, ownerID string) (*model.Business, error) {
	return r.getBusiness(ctx, db, "owner_id = $1", ownerID, "")
}

func (r *BusinessRepository) getBusiness(ctx context.Context, db DBExecutor, where string, arg interface{}, lock string) (*model.Business, error) {
	query := `
		SELECT ` + businessColumns + `
		FROM businesses
		WHERE ` + where + `
	` + lock

	var b model.Business
	if err := db.GetContext(ctx, &b, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return &b, nil
}

// UpdateBusiness writes every mutable business column
func (r *BusinessRepository) UpdateBusiness(ctx context.Context, db DBExecutor, b *model.Business) error {
	query := `
		UPDATE businesses
		SET name = $2, legal_name = $3, tax_id = $4, company_type = $5, location = $6,
		    payment_method_token = $7, verified = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query,
		b.ID, b.Name, b.LegalName, b.TaxID, b.CompanyType, b.Location,
		b.PaymentMethodToken, b.Verified, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update business: %w", err)
	}
	return expectOneRow(result)
}
