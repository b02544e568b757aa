package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery records how an alert reached the chat.
type Delivery string

const (
	DeliveryPhoto  Delivery = "photo"
	DeliveryText   Delivery = "text"
	DeliveryFailed Delivery = "failed"
)

// AlertRecord captures an emitted divergence alert for auditing.
type AlertRecord struct {
	ID           int64
	Symbol       string
	DeviationPct decimal.Decimal
	LastPrice    decimal.Decimal
	FairPrice    decimal.Decimal
	Volume24     decimal.Decimal
	Direction    string
	Delivery     Delivery
	Error        *string
	AlertTS      time.Time
	CreatedAt    time.Time
}
