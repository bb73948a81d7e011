package enums

// OrderHistoryAction labels a row in the order history trail.
type OrderHistoryAction string

const (
	OrderActionCreated                  OrderHistoryAction = "created"
	OrderActionConfirmed                OrderHistoryAction = "confirmed"
	OrderActionPreparing                OrderHistoryAction = "preparing"
	OrderActionReady                    OrderHistoryAction = "ready"
	OrderActionDelivered                OrderHistoryAction = "delivered"
	OrderActionCancelled                OrderHistoryAction = "cancelled"
	OrderActionRefunded                 OrderHistoryAction = "refunded"
	OrderActionCompleted                OrderHistoryAction = "completed"
	OrderActionReviewed                 OrderHistoryAction = "reviewed"
	OrderActionRefundEligibilityUpdated OrderHistoryAction = "refund_eligibility_updated"
	OrderActionUpdated                  OrderHistoryAction = "updated"
	OrderActionNoteAdded                OrderHistoryAction = "note_added"
	OrderActionNotificationSent         OrderHistoryAction = "notification_sent"
	OrderActionMessageSent              OrderHistoryAction = "message_sent"
)

var validOrderHistoryActions = []OrderHistoryAction{
	OrderActionCreated,
	OrderActionConfirmed,
	OrderActionPreparing,
	OrderActionReady,
	OrderActionDelivered,
	OrderActionCancelled,
	OrderActionRefunded,
	OrderActionCompleted,
	OrderActionReviewed,
	OrderActionRefundEligibilityUpdated,
	OrderActionUpdated,
	OrderActionNoteAdded,
	OrderActionNotificationSent,
	OrderActionMessageSent,
}

func (a OrderHistoryAction) String() string {
	return string(a)
}

func (a OrderHistoryAction) IsValid() bool {
	return contains(validOrderHistoryActions, a)
}

func ParseOrderHistoryAction(value string) (OrderHistoryAction, error) {
	return parse(validOrderHistoryActions, value, "order history action")
}

// CancellationReason is the caller-supplied reason recorded on cancelled orders.
type CancellationReason string

const (
	CancelReasonCustomerRequest CancellationReason = "customer_request"
	CancelReasonOutOfStock      CancellationReason = "out_of_stock"
	CancelReasonChefUnavailable CancellationReason = "chef_unavailable"
	CancelReasonDeliveryIssue   CancellationReason = "delivery_issue"
	CancelReasonFraudulent      CancellationReason = "fraudulent"
	CancelReasonDuplicate       CancellationReason = "duplicate"
	CancelReasonOther           CancellationReason = "other"
)

var validCancellationReasons = []CancellationReason{
	CancelReasonCustomerRequest,
	CancelReasonOutOfStock,
	CancelReasonChefUnavailable,
	CancelReasonDeliveryIssue,
	CancelReasonFraudulent,
	CancelReasonDuplicate,
	CancelReasonOther,
}

func (r CancellationReason) IsValid() bool {
	return contains(validCancellationReasons, r)
}

func ParseCancellationReason(value string) (CancellationReason, error) {
	return parse(validCancellationReasons, value, "cancellation reason")
}

// OrderNoteType scopes who a note is written for.
type OrderNoteType string

const (
	OrderNoteChef     OrderNoteType = "chef_note"
	OrderNoteCustomer OrderNoteType = "customer_note"
	OrderNoteInternal OrderNoteType = "internal_note"
)

var validOrderNoteTypes = []OrderNoteType{OrderNoteChef, OrderNoteCustomer, OrderNoteInternal}

func (n OrderNoteType) IsValid() bool {
	return contains(validOrderNoteTypes, n)
}

func ParseOrderNoteType(value string) (OrderNoteType, error) {
	return parse(validOrderNoteTypes, value, "order note type")
}
