package service

import (
	"context"

	"github.com/kkkkikiki/referral/internal/model"
)

// ConsumerFacade exposes the operations available to a consumer. It is bound
// to one authenticated caller.
type ConsumerFacade struct {
	svc    *Service
	caller Caller
}

// Consumer returns the consumer-scoped operations for caller
func (s *Service) Consumer(caller Caller) (*ConsumerFacade, error) {
	if err := caller.require(RoleConsumer); err != nil {
		return nil, err
	}
	return &ConsumerFacade{svc: s, caller: caller}, nil
}

// Caller returns the principal the facade acts for
func (f *ConsumerFacade) Caller() Caller {
	return f.caller
}

// BusinessFacade exposes the operations available to a business owner or
// cashier. Every call resolves the caller's business and checks ownership.
type BusinessFacade struct {
	svc    *Service
	caller Caller
}

// Business returns the business-scoped operations for caller
func (s *Service) Business(caller Caller) (*BusinessFacade, error) {
	if err := caller.require(RoleBusiness); err != nil {
		return nil, err
	}
	return &BusinessFacade{svc: s, caller: caller}, nil
}

// Caller returns the principal the facade acts for
func (f *BusinessFacade) Caller() Caller {
	return f.caller
}

// business loads the business registered by the caller
func (f *BusinessFacade) business(ctx context.Context) (*model.Business, error) {
	b, err := f.svc.store.GetBusinessByOwner(ctx, f.caller.ID)
	if err != nil {
		return nil, notFound(err, ErrBusinessNotFound)
	}
	return b, nil
}
