package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const maxPaymentTokenLength = 255

// RegisterBusinessInput is the signup form of a business
type RegisterBusinessInput struct {
	Name        string
	LegalName   string
	TaxID       string
	CompanyType string
	Location    string
}

// RegisterBusiness creates the caller's business. Each owner has at most one.
func (f *BusinessFacade) RegisterBusiness(ctx context.Context, in RegisterBusinessInput) (*model.Business, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}

	now := f.svc.clock()
	b := &model.Business{
		ID:          uuid.New(),
		OwnerID:     f.caller.ID,
		Name:        name,
		LegalName:   strings.TrimSpace(in.LegalName),
		TaxID:       strings.TrimSpace(in.TaxID),
		CompanyType: strings.TrimSpace(in.CompanyType),
		Location:    strings.TrimSpace(in.Location),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := f.svc.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertBusiness(ctx, b)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateBusiness) {
			return nil, ErrBusinessExists
		}
		return nil, fmt.Errorf("failed to register business: %w", err)
	}

	f.svc.logger.InfoContext(ctx, "business registered", "business_id", b.ID, "owner_id", b.OwnerID)
	return b, nil
}

// Profile returns the caller's business
func (f *BusinessFacade) Profile(ctx context.Context) (*model.Business, error) {
	return f.business(ctx)
}

// UpdateProfile applies patch to the caller's business. Legal fields are
// frozen once the business is verified.
func (f *BusinessFacade) UpdateProfile(ctx context.Context, patch model.BusinessPatch) (*model.Business, error) {
	return f.mutate(ctx, func(b *model.Business) error {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return invalid("name", "must not be empty")
			}
			b.Name = name
		}
		if patch.Location != nil {
			b.Location = strings.TrimSpace(*patch.Location)
		}

		legal := []struct {
			field string
			value *string
			dst   *string
		}{
			{"legal_name", patch.LegalName, &b.LegalName},
			{"tax_id", patch.TaxID, &b.TaxID},
			{"company_type", patch.CompanyType, &b.CompanyType},
		}
		for _, l := range legal {
			if l.value == nil {
				continue
			}
			v := strings.TrimSpace(*l.value)
			if v == *l.dst {
				continue
			}
			if b.Verified {
				return &ImmutableFieldError{Field: l.field}
			}
			*l.dst = v
		}
		return nil
	})
}

// SetPaymentMethod stores an opaque token issued by the payment provider
func (f *BusinessFacade) SetPaymentMethod(ctx context.Context, token string) (*model.Business, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return nil, invalid("payment_method_token", "must not be empty")
	case len(token) > maxPaymentTokenLength:
		return nil, invalid("payment_method_token", "must be at most %d bytes", maxPaymentTokenLength)
	case strings.IndexFunc(token, unicode.IsSpace) >= 0:
		return nil, invalid("payment_method_token", "must not contain whitespace")
	}

	return f.mutate(ctx, func(b *model.Business) error {
		b.PaymentMethodToken = &token
		return nil
	})
}

// ClearPaymentMethod removes the stored payment token
func (f *BusinessFacade) ClearPaymentMethod(ctx context.Context) (*model.Business, error) {
	return f.mutate(ctx, func(b *model.Business) error {
		b.PaymentMethodToken = nil
		return nil
	})
}

// DashboardStats aggregates the caller's campaigns and referrals
func (f *BusinessFacade) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := f.svc.store.GetDashboardStats(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	return stats, nil
}

func (f *BusinessFacade) mutate(ctx context.Context, apply func(b *model.Business) error) (*model.Business, error) {
	own, err := f.business(ctx)
	if err != nil {
		return nil, err
	}

	var out *model.Business
	err = f.svc.store.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.LockBusiness(ctx, own.ID)
		if err != nil {
			return notFound(err, ErrBusinessNotFound)
		}
		if err := apply(b); err != nil {
			return err
		}
		b.UpdatedAt = f.svc.clock()
		if err := tx.UpdateBusiness(ctx, b); err != nil {
			return notFound(err, ErrBusinessNotFound)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkBusinessVerified records a successful KYC check. From then on the
// legal name, tax id and company type can no longer change.
func (s *Service) MarkBusinessVerified(ctx context.Context, businessID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.LockBusiness(ctx, businessID)
		if err != nil {
			return notFound(err, ErrBusinessNotFound)
		}
		if b.Verified {
			return nil
		}
		b.Verified = true
		b.UpdatedAt = s.clock()
		return tx.UpdateBusiness(ctx, b)
	})
}
