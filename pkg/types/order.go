package types

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeliveryAddress is the customer's drop-off location.
type DeliveryAddress struct {
	Street   string `json:"street" validate:"required"`
	City     string `json:"city" validate:"required"`
	Postcode string `json:"postcode" validate:"required"`
	Country  string `json:"country" validate:"required"`
}

// IsZero reports whether every field is blank.
func (a DeliveryAddress) IsZero() bool {
	return strings.TrimSpace(a.Street+a.City+a.Postcode+a.Country) == ""
}

// OrderItem is a line on an order as priced at checkout.
type OrderItem struct {
	DishID    uuid.UUID       `json:"dish_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItems is the jsonb-stored slice of order lines.
type OrderItems []OrderItem

// Total sums every line.
func (items OrderItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
