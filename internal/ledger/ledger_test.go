package ledger

import (
	"errors"
	"math"
	"strings"
	"testing"

	"labstock/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNormalizeMassUnits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		amount float64
		from   string
		to     string
		want   float64
	}{
		{"kg to g", 1, "kg", "g", 1000},
		{"mg to g", 1000, "mg", "g", 1},
		{"micrograms to g", 1, "μg", "g", 0.000001},
		{"ascii microgram alias", 1, "ug", "g", 0.000001},
		{"g to kg", 500, "g", "kg", 0.5},
		{"same unit passthrough", 42, "ml", "ml", 42},
		{"count unit passthrough", 3, "瓶", "瓶", 3},
		{"case-insensitive symbols", 2, "KG", "G", 2000},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.amount, tt.from, tt.to)
			if err != nil {
				t.Fatalf("Normalize(%g, %q, %q) returned error: %v", tt.amount, tt.from, tt.to, err)
			}
			if !almostEqual(got, tt.want) {
				t.Fatalf("Normalize(%g, %q, %q) = %g, want %g", tt.amount, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestNormalizeRejectsCrossDimension(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from string
		to   string
	}{
		{"ml", "g"},
		{"g", "ml"},
		{"瓶", "g"},
		{"ml", "l"},
	}

	for _, tt := range cases {
		if _, err := Normalize(1, tt.from, tt.to); err == nil {
			t.Fatalf("Normalize(1, %q, %q) succeeded, want UnsupportedUnitError", tt.from, tt.to)
		} else {
			var unsupported *UnsupportedUnitError
			if !errors.As(err, &unsupported) {
				t.Fatalf("Normalize(1, %q, %q) returned %T, want *UnsupportedUnitError", tt.from, tt.to, err)
			}
		}
	}
}

func TestApplyCreateDebitsBalance(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 100, Unit: "g", QuantityText: "1000g"}
	if err := Apply(item, ModeCreate, 5, "g", nil); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 95) {
		t.Fatalf("expected balance 95, got %g", item.CurrentQuantity)
	}

	status := Classify(item)
	if status.Status != StatusLow {
		t.Fatalf("expected status low at 9.5%%, got %q", status.Status)
	}
	if !almostEqual(status.Percentage, 9.5) {
		t.Fatalf("expected percentage 9.5, got %g", status.Percentage)
	}
}

func TestApplyCreateConvertsUnits(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 100, Unit: "g"}
	if err := Apply(item, ModeCreate, 0.001, "kg", nil); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 99) {
		t.Fatalf("expected balance 99 after 0.001kg debit, got %g", item.CurrentQuantity)
	}
}

func TestApplyCreateInsufficientStock(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 10, Unit: "g"}
	before := item.Version
	err := Apply(item, ModeCreate, 15, "g", nil)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 10) {
		t.Fatalf("balance must be untouched after a failed debit, got %g", item.CurrentQuantity)
	}
	if item.Version != before {
		t.Fatalf("version must not advance on failure")
	}
}

func TestApplyRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 10, Unit: "g"}
	for _, amount := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		err := Apply(item, ModeCreate, amount, "g", nil)
		var invalid *InvalidAmountError
		if !errors.As(err, &invalid) {
			t.Fatalf("Apply with amount %g returned %v, want InvalidAmountError", amount, err)
		}
	}
}

func TestApplyRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 10, Unit: "g"}
	before := item.Version
	if err := Apply(item, Mode(99), 5, "g", nil); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
	if !almostEqual(item.CurrentQuantity, 10) || item.Version != before {
		t.Fatalf("item must be untouched after a rejected mode, got balance %g version %d", item.CurrentQuantity, item.Version)
	}
}

func TestApplyUpdateRequiresPrev(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 95, Unit: "g"}
	err := Apply(item, ModeUpdate, 8, "g", nil)
	if err == nil {
		t.Fatal("expected an error when no previous usage is supplied")
	}
	var invalid *InvalidAmountError
	if errors.As(err, &invalid) {
		t.Fatalf("expected a missing-previous-usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "previous usage") {
		t.Fatalf("error should name the missing previous usage, got %q", err.Error())
	}
	if !almostEqual(item.CurrentQuantity, 95) {
		t.Fatalf("balance must be untouched, got %g", item.CurrentQuantity)
	}
}

func TestApplyUpdateIsAllOrNothing(t *testing.T) {
	t.Parallel()

	// Scenario: item debited 5g earlier sits at 95; the record changes to 8g.
	item := &models.StorageItem{CurrentQuantity: 95, Unit: "g"}
	prev := &Usage{Amount: 5, Unit: "g"}
	if err := Apply(item, ModeUpdate, 8, "g", prev); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 92) {
		t.Fatalf("expected balance 92, got %g", item.CurrentQuantity)
	}

	// Raising the amount beyond credit + balance fails without mutating.
	item = &models.StorageItem{CurrentQuantity: 2, Unit: "g"}
	err := Apply(item, ModeUpdate, 10, "g", prev)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 2) {
		t.Fatalf("balance must be untouched after a failed update, got %g", item.CurrentQuantity)
	}
}

func TestApplyUpdateAcrossUnits(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 95, Unit: "g"}
	prev := &Usage{Amount: 5000, Unit: "mg"}
	if err := Apply(item, ModeUpdate, 0.008, "kg", prev); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 92) {
		t.Fatalf("expected balance 92, got %g", item.CurrentQuantity)
	}
}

func TestApplyDeleteRestoresBalance(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 92, Unit: "g"}
	if err := Apply(item, ModeDelete, 5, "g", nil); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !almostEqual(item.CurrentQuantity, 97) {
		t.Fatalf("expected balance 97, got %g", item.CurrentQuantity)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 73.25, Unit: "g"}
	amounts := []struct {
		amount float64
		unit   string
	}{
		{5, "g"},
		{0.0021, "kg"},
		{340, "mg"},
	}

	for _, usage := range amounts {
		if err := Apply(item, ModeCreate, usage.amount, usage.unit, nil); err != nil {
			t.Fatalf("create %g%s failed: %v", usage.amount, usage.unit, err)
		}
		if err := Apply(item, ModeDelete, usage.amount, usage.unit, nil); err != nil {
			t.Fatalf("delete %g%s failed: %v", usage.amount, usage.unit, err)
		}
	}

	if math.Abs(item.CurrentQuantity-73.25) > 1e-6 {
		t.Fatalf("round trip drifted: expected 73.25, got %.9f", item.CurrentQuantity)
	}
}

func TestApplyNeverGoesNegative(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 1, Unit: "g"}
	debits := []float64{0.4, 0.4, 0.4, 0.4}
	for _, amount := range debits {
		_ = Apply(item, ModeCreate, amount, "g", nil)
		if item.CurrentQuantity < 0 {
			t.Fatalf("balance went negative: %g", item.CurrentQuantity)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		item models.StorageItem
		want Status
	}{
		{"zero quantity is out of stock", models.StorageItem{CurrentQuantity: 0, QuantityText: "100g"}, StatusOutOfStock},
		{"negative treated as out of stock", models.StorageItem{CurrentQuantity: -1, QuantityText: "100g"}, StatusOutOfStock},
		{"unparseable baseline", models.StorageItem{CurrentQuantity: 10, QuantityText: "abc"}, StatusUnknown},
		{"empty baseline", models.StorageItem{CurrentQuantity: 10, QuantityText: ""}, StatusUnknown},
		{"zero baseline counts as low", models.StorageItem{CurrentQuantity: 3, QuantityText: "0瓶"}, StatusLow},
		{"below ten percent", models.StorageItem{CurrentQuantity: 9, QuantityText: "100g"}, StatusLow},
		{"exactly ten percent", models.StorageItem{CurrentQuantity: 10, QuantityText: "100g"}, StatusLowWarning},
		{"between ten and thirty", models.StorageItem{CurrentQuantity: 25, QuantityText: "100g"}, StatusLowWarning},
		{"exactly thirty percent", models.StorageItem{CurrentQuantity: 30, QuantityText: "100g"}, StatusHealthy},
		{"full stock", models.StorageItem{CurrentQuantity: 100, QuantityText: "100g"}, StatusHealthy},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(&tt.item)
			if got.Status != tt.want {
				t.Fatalf("Classify() = %q, want %q", got.Status, tt.want)
			}
		})
	}
}

func TestClassifyZeroBaselineHasZeroPercentage(t *testing.T) {
	t.Parallel()

	// A leading zero parses, so this is the divide-by-zero guard rather than
	// the unknown degradation: percentage 0, no display floor.
	item := &models.StorageItem{CurrentQuantity: 3, QuantityText: "0瓶"}
	status := Classify(item)
	if status.Status != StatusLow {
		t.Fatalf("expected low status, got %q", status.Status)
	}
	if status.Percentage != 0 {
		t.Fatalf("expected percentage 0 for a zero baseline, got %g", status.Percentage)
	}
	if status.Label != "库存不足" {
		t.Fatalf("expected 库存不足 label, got %q", status.Label)
	}
}

func TestClassifyIsPure(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 42.5, Unit: "g", QuantityText: "100g"}
	first := Classify(item)
	second := Classify(item)
	if first != second {
		t.Fatalf("Classify is not deterministic: %+v vs %+v", first, second)
	}
}

func TestClassifyDisplayFloor(t *testing.T) {
	t.Parallel()

	item := &models.StorageItem{CurrentQuantity: 1, QuantityText: "1000g"}
	status := Classify(item)
	if status.Status != StatusLow {
		t.Fatalf("expected low status, got %q", status.Status)
	}
	if status.Percentage != 5 {
		t.Fatalf("expected display percentage floored at 5, got %g", status.Percentage)
	}
}
