// Package ledger is the sole authority for storage-item balance arithmetic:
// it normalizes usage amounts to the item's canonical unit, enforces the
// non-negative-stock invariant across create/update/delete of usage events,
// and classifies stock health. All functions operate on an in-memory snapshot;
// persistence and transaction boundaries belong to the caller.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	applog "labstock/internal/log"
	"labstock/models"
)

// Mode selects how a usage event affects the balance.
type Mode int

const (
	// ModeCreate debits a new usage amount from the balance.
	ModeCreate Mode = iota
	// ModeUpdate replaces a previously applied amount with a new one.
	ModeUpdate
	// ModeDelete credits a previously applied amount back to the balance.
	ModeDelete
)

// precision matches the original system's six-decimal quantity arithmetic.
const precision = 1e6

var nowFunc = time.Now

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}

// Usage is an amount/unit pair as entered by the caller.
type Usage struct {
	Amount float64
	Unit   string
}

// Apply mutates item.CurrentQuantity for one usage event. amount and unit
// describe the event; prev carries the amount being replaced and is required
// for ModeUpdate. Validation happens before any mutation: on error the item
// is untouched. On success UpdatedAt and Version advance.
func Apply(item *models.StorageItem, mode Mode, amount float64, unit string, prev *Usage) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return &InvalidAmountError{Amount: amount}
	}

	normalized, err := Normalize(amount, unit, item.Unit)
	if err != nil {
		return err
	}

	switch mode {
	case ModeCreate:
		if normalized > item.CurrentQuantity {
			return &InsufficientStockError{Available: item.CurrentQuantity, Requested: normalized, Unit: item.Unit}
		}
		item.CurrentQuantity = round(item.CurrentQuantity - normalized)

	case ModeUpdate:
		if prev == nil {
			return errors.New("previous usage is required to replace an applied amount")
		}
		normalizedPrev, err := Normalize(prev.Amount, prev.Unit, item.Unit)
		if err != nil {
			return err
		}
		// Single invariant check for the net effect; credit and debit are
		// indivisible.
		next := round(item.CurrentQuantity + normalizedPrev - normalized)
		if next < 0 {
			return &InsufficientStockError{Available: round(item.CurrentQuantity + normalizedPrev), Requested: normalized, Unit: item.Unit}
		}
		item.CurrentQuantity = next

	case ModeDelete:
		restored := round(item.CurrentQuantity + normalized)
		if restored < 0 {
			// A credit can only go negative if the stored balance was already
			// corrupt. Clamp and warn instead of failing the delete.
			applog.Error(context.Background(), "clamping corrupt balance during usage delete",
				"item", item.ID, "balance", item.CurrentQuantity, "credit", normalized)
			restored = 0
		}
		item.CurrentQuantity = restored

	default:
		return fmt.Errorf("unsupported balance mode %d", mode)
	}

	item.UpdatedAt = nowFunc().UTC()
	item.Version++
	return nil
}
