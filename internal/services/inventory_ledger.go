package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jara-commerce/api/internal/repositories"
)

// InventoryLedgerDeps bundles collaborators required to construct the inventory ledger.
type InventoryLedgerDeps struct {
	Products repositories.ProductRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryLedger struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

var _ InventoryLedger = (*inventoryLedger)(nil)

// NewInventoryLedger constructs the ledger that guards product stock.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{products: deps.Products, logger: logger}, nil
}

// Reserve atomically takes qty units, failing without side effects when stock is short.
func (l *inventoryLedger) Reserve(ctx context.Context, productID string, qty int64) error {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return fmt.Errorf("%w: product %q quantity %d", ErrInventoryInvalidInput, productID, qty)
	}
	if _, err := l.products.DecrementStock(ctx, productID, qty); err != nil {
		return mapStockError(err)
	}
	return nil
}

// Release returns qty units. There is no upper bound; callers release only what they reserved.
func (l *inventoryLedger) Release(ctx context.Context, productID string, qty int64) error {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return fmt.Errorf("%w: product %q quantity %d", ErrInventoryInvalidInput, productID, qty)
	}
	if err := l.products.IncrementStock(ctx, productID, qty); err != nil {
		return mapStockError(err)
	}
	return nil
}

// ReserveAll reserves every line in order. On the first failure it releases what this call
// already reserved and returns the original failure.
func (l *inventoryLedger) ReserveAll(ctx context.Context, lines []StockLine) error {
	reserved := make([]StockLine, 0, len(lines))
	for _, line := range lines {
		if err := l.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if len(reserved) > 0 {
				// Compensation must run even if the caller's context was cancelled.
				if releaseErr := l.releaseAll(context.WithoutCancel(ctx), reserved, "reserve_rollback"); releaseErr != nil {
					return errors.Join(err, releaseErr)
				}
			}
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseAll releases every line, continuing past failures, and returns the joined error.
func (l *inventoryLedger) ReleaseAll(ctx context.Context, lines []StockLine) error {
	return l.releaseAll(ctx, lines, "release")
}

func (l *inventoryLedger) releaseAll(ctx context.Context, lines []StockLine, reason string) error {
	var errs []error
	for _, line := range lines {
		if err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			l.logger(ctx, "inventory.compensation.failed", map[string]any{
				"alarm":     true,
				"reason":    reason,
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mapStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, stockErr)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %w", ErrProductNotFound, stockErr)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %w", ErrInventoryInvalidInput, stockErr)
		}
	}
	return mapRepositoryError(err, ErrProductNotFound, nil)
}

// stockLines collapses order lines into per-product quantities, preserving first-seen order.
func stockLines(items []OrderLineInput) []StockLine {
	index := make(map[string]int, len(items))
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if i, ok := index[id]; ok {
			lines[i].Quantity += int64(item.Quantity)
			continue
		}
		index[id] = len(lines)
		lines = append(lines, StockLine{ProductID: id, Quantity: int64(item.Quantity)})
	}
	return lines
}
