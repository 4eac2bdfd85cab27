package ledger

import "fmt"

// UnsupportedUnitError reports a unit pair the conversion table cannot bridge.
type UnsupportedUnitError struct {
	From string
	To   string
}

func (e *UnsupportedUnitError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("unsupported unit: %q", e.From)
	}
	return fmt.Sprintf("cannot convert %q to %q: units are not in the same convertible dimension", e.From, e.To)
}

// InsufficientStockError reports a debit that would drive the balance negative.
type InsufficientStockError struct {
	Available float64
	Requested float64
	Unit      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: current %g%s, requested %g%s", e.Available, e.Unit, e.Requested, e.Unit)
}

// InvalidAmountError reports a non-positive or non-finite usage amount.
type InvalidAmountError struct {
	Amount float64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("usage amount must be greater than 0, got %g", e.Amount)
}

// MalformedQuantityTextError reports a quantity string with no extractable
// leading number. Classification degrades to an unknown status instead of
// propagating this error; only strict parsing (item creation, import) returns it.
type MalformedQuantityTextError struct {
	Text string
}

func (e *MalformedQuantityTextError) Error() string {
	return fmt.Sprintf("invalid quantity format %q: expected a number followed by a unit, like \"100g\" or \"50ml\"", e.Text)
}
