package ledger

import "labstock/models"

// Status is the derived stock-health classification of a storage item.
type Status string

const (
	StatusHealthy    Status = "healthy"
	StatusLowWarning Status = "low_warning"
	StatusLow        Status = "low"
	StatusOutOfStock Status = "out_of_stock"
	StatusUnknown    Status = "unknown"
)

// Thresholds are the remaining-stock percentages below which an item is
// flagged. Defaults match the original deployment and are overridable through
// configuration, not per request.
type Thresholds struct {
	Low     float64
	Warning float64
}

// DefaultThresholds: below 10% an item is low, below 30% it is running low.
var DefaultThresholds = Thresholds{Low: 10, Warning: 30}

// displayFloor keeps the percentage badge visible for any non-zero stock.
const displayFloor = 5

// StockStatus is the advisory classification returned to the UI.
type StockStatus struct {
	Status     Status  `json:"status"`
	Percentage float64 `json:"percentage"`
	Label      string  `json:"label"`
}

// Classify derives the stock status of an item from its current balance and
// the baseline parsed out of its original quantity text. It never fails:
// an unparseable baseline degrades to StatusUnknown.
func Classify(item *models.StorageItem) StockStatus {
	return ClassifyWith(item, DefaultThresholds)
}

// ClassifyWith is Classify with explicit thresholds.
func ClassifyWith(item *models.StorageItem, th Thresholds) StockStatus {
	if item.CurrentQuantity <= 0 {
		return StockStatus{Status: StatusOutOfStock, Percentage: 0, Label: "已用完"}
	}

	baseline, ok := ParseBaseline(item.QuantityText)
	if !ok {
		return StockStatus{Status: StatusUnknown, Percentage: 0, Label: "库存未知"}
	}

	// A zero baseline is the divide-by-zero guard: percentage 0, which lands
	// in the low bucket. Only a missing leading number degrades to unknown.
	percentage := 0.0
	display := 0.0
	if baseline > 0 {
		percentage = round(item.CurrentQuantity / baseline * 100)
		display = percentage
		if display < displayFloor {
			display = displayFloor
		}
	}

	switch {
	case percentage < th.Low:
		return StockStatus{Status: StatusLow, Percentage: display, Label: "库存不足"}
	case percentage < th.Warning:
		return StockStatus{Status: StatusLowWarning, Percentage: display, Label: "库存较低"}
	default:
		return StockStatus{Status: StatusHealthy, Percentage: display, Label: "库存充足"}
	}
}
