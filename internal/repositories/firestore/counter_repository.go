package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
// Order numbers draw from yearly counters such as "orders:2026".
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	now      func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next atomically advances the counter and returns the new value. A step of zero uses the
// configured step; a missing counter starts at the step.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, fmt.Errorf("%w: counter id is required", repositories.ErrCounterInvalidInput)
	}
	if step < 0 {
		return 0, fmt.Errorf("%w: step must be positive, got %d", repositories.ErrCounterInvalidInput, step)
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.counters.Get(ctx, id)
		switch {
		case isNotFound(err):
			doc = counterDocument{}
		case err != nil:
			return err
		}

		increment := step
		if increment <= 0 {
			increment = max(doc.Step, 1)
		}
		value := doc.CurrentValue + increment
		if doc.MaxValue != nil && value > *doc.MaxValue {
			return fmt.Errorf("%w: counter %s exceeded max value %d", repositories.ErrCounterExhausted, id, *doc.MaxValue)
		}

		doc.CurrentValue = value
		doc.Step = increment
		doc.UpdatedAt = r.now()
		if err := r.counters.Set(ctx, id, doc); err != nil {
			return err
		}
		next = value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Configure updates optional settings for the counter such as step size, max value, or initial value.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return fmt.Errorf("%w: counter id is required", repositories.ErrCounterInvalidInput)
	}

	payload := map[string]any{"updatedAt": r.now()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
