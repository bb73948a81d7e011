package enums

// NotificationType maps to the notification_type column of in-app notifications.
type NotificationType string

const (
	NotificationTypeOrderUpdate  NotificationType = "order_update"
	NotificationTypeChatMessage  NotificationType = "chat_message"
	NotificationTypeSupport      NotificationType = "support"
	NotificationTypeAnnouncement NotificationType = "announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderUpdate,
	NotificationTypeChatMessage,
	NotificationTypeSupport,
	NotificationTypeAnnouncement,
}

func (n NotificationType) IsValid() bool {
	return contains(validNotificationTypes, n)
}

func ParseNotificationType(value string) (NotificationType, error) {
	return parse(validNotificationTypes, value, "notification type")
}

// OrderNotificationType labels an explicit notification sent about an order.
type OrderNotificationType string

const (
	OrderNotificationConfirmed OrderNotificationType = "order_confirmed"
	OrderNotificationPreparing OrderNotificationType = "order_preparing"
	OrderNotificationReady     OrderNotificationType = "order_ready"
	OrderNotificationDelivered OrderNotificationType = "order_delivered"
	OrderNotificationCompleted OrderNotificationType = "order_completed"
	OrderNotificationCancelled OrderNotificationType = "order_cancelled"
	OrderNotificationUpdated   OrderNotificationType = "order_updated"
	OrderNotificationCustom    OrderNotificationType = "custom"
)

var validOrderNotificationTypes = []OrderNotificationType{
	OrderNotificationConfirmed,
	OrderNotificationPreparing,
	OrderNotificationReady,
	OrderNotificationDelivered,
	OrderNotificationCompleted,
	OrderNotificationCancelled,
	OrderNotificationUpdated,
	OrderNotificationCustom,
}

func (n OrderNotificationType) IsValid() bool {
	return contains(validOrderNotificationTypes, n)
}

func ParseOrderNotificationType(value string) (OrderNotificationType, error) {
	return parse(validOrderNotificationTypes, value, "order notification type")
}

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

var validNotificationPriorities = []NotificationPriority{
	NotificationPriorityLow,
	NotificationPriorityMedium,
	NotificationPriorityHigh,
	NotificationPriorityUrgent,
}

func (p NotificationPriority) IsValid() bool {
	return contains(validNotificationPriorities, p)
}

func ParseNotificationPriority(value string) (NotificationPriority, error) {
	return parse(validNotificationPriorities, value, "notification priority")
}

type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelInApp NotificationChannel = "in_app"
)

var validNotificationChannels = []NotificationChannel{
	NotificationChannelEmail,
	NotificationChannelSMS,
	NotificationChannelPush,
	NotificationChannelInApp,
}

func (c NotificationChannel) IsValid() bool {
	return contains(validNotificationChannels, c)
}

func ParseNotificationChannel(value string) (NotificationChannel, error) {
	return parse(validNotificationChannels, value, "notification channel")
}

// OrderNotificationStatus tracks delivery of an order notification record.
type OrderNotificationStatus string

const (
	OrderNotificationStatusSent      OrderNotificationStatus = "sent"
	OrderNotificationStatusDelivered OrderNotificationStatus = "delivered"
	OrderNotificationStatusFailed    OrderNotificationStatus = "failed"
	OrderNotificationStatusRead      OrderNotificationStatus = "read"
)
