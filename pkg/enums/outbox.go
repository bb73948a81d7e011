package enums

// OutboxAggregateType maps to the aggregate_type column of outbox rows.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateChat        OutboxAggregateType = "chat"
	AggregateSupportCase OutboxAggregateType = "support_case"
	AggregateChange      OutboxAggregateType = "change"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateChat,
	AggregateSupportCase,
	AggregateChange,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox rows.
type OutboxEventType string

const (
	EventOrderCreated            OutboxEventType = "order.created"
	EventOrderStatusChanged      OutboxEventType = "order.status_changed"
	EventOrderReviewed           OutboxEventType = "order.reviewed"
	EventOrderUpdated            OutboxEventType = "order.updated"
	EventOrderNoteAdded          OutboxEventType = "order.note_added"
	EventOrderRefundWindowClosed OutboxEventType = "order.refund_window_closed"
	EventOrderNotificationSent   OutboxEventType = "order.notification_sent"
	EventChatMessageSent         OutboxEventType = "chat.message_sent"
	EventSupportCaseCreated      OutboxEventType = "support.case_created"
	EventSupportCaseAssigned     OutboxEventType = "support.case_assigned"
	EventSupportCaseStatus       OutboxEventType = "support.case_status_changed"
	EventChangeBroadcast         OutboxEventType = "change.broadcast"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderReviewed,
	EventOrderUpdated,
	EventOrderNoteAdded,
	EventOrderRefundWindowClosed,
	EventOrderNotificationSent,
	EventChatMessageSent,
	EventSupportCaseCreated,
	EventSupportCaseAssigned,
	EventSupportCaseStatus,
	EventChangeBroadcast,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return contains([]OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}, r)
}
