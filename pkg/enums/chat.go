package enums

// MessageType classifies chat message payloads.
type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeImage        MessageType = "image"
	MessageTypeFile         MessageType = "file"
	MessageTypeStatusUpdate MessageType = "status_update"
	MessageTypeSystem       MessageType = "system"
)

var validMessageTypes = []MessageType{
	MessageTypeText,
	MessageTypeImage,
	MessageTypeFile,
	MessageTypeStatusUpdate,
	MessageTypeSystem,
}

func (m MessageType) IsValid() bool {
	return contains(validMessageTypes, m)
}

// IsUserSendable reports whether clients may post this type directly.
func (m MessageType) IsUserSendable() bool {
	return m == MessageTypeText || m == MessageTypeImage || m == MessageTypeFile
}

func ParseMessageType(value string) (MessageType, error) {
	return parse(validMessageTypes, value, "message type")
}

// ChatKind distinguishes what a conversation is attached to.
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindOrder   ChatKind = "order"
	ChatKindSupport ChatKind = "support"
)

var validChatKinds = []ChatKind{ChatKindDirect, ChatKindOrder, ChatKindSupport}

func (k ChatKind) IsValid() bool {
	return contains(validChatKinds, k)
}
