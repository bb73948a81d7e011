package enums

// OrderStatus tracks an order's position in its fulfillment lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	return contains(validOrderStatuses, s)
}

// IsTerminal reports whether no further lifecycle transition can leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(validOrderStatuses, value, "order status")
}

// OrderStatuses returns every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// PaymentStatus mirrors the payment state recorded on an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	return contains(validPaymentStatuses, p)
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(validPaymentStatuses, value, "payment status")
}
