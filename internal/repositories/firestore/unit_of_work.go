package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

// UnitOfWork runs fn inside one Firestore transaction. Repositories called with the ctx handed to
// fn join the transaction, so fn must perform all reads before its first write.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

var _ repositories.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork constructs a transactional unit of work.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider}, nil
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return u.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
