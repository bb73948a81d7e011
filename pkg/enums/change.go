package enums

// ChangeType labels rows in the broadcast change feed.
type ChangeType string

const (
	ChangeOrderStatus   ChangeType = "order_status"
	ChangeOrderUpdated  ChangeType = "order_updated"
	ChangeChatMessage   ChangeType = "chat_message"
	ChangeSupportCase   ChangeType = "support_case"
	ChangeAnnouncement  ChangeType = "announcement"
	ChangeMaintenance   ChangeType = "maintenance"
	ChangeConfiguration ChangeType = "configuration"
)

var validChangeTypes = []ChangeType{
	ChangeOrderStatus,
	ChangeOrderUpdated,
	ChangeChatMessage,
	ChangeSupportCase,
	ChangeAnnouncement,
	ChangeMaintenance,
	ChangeConfiguration,
}

func (c ChangeType) IsValid() bool {
	return contains(validChangeTypes, c)
}

// IsBroadcastable reports whether admins may emit this type by hand.
func (c ChangeType) IsBroadcastable() bool {
	return c == ChangeAnnouncement || c == ChangeMaintenance || c == ChangeConfiguration
}

func ParseChangeType(value string) (ChangeType, error) {
	return parse(validChangeTypes, value, "change type")
}
