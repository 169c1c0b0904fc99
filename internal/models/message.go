package models

// MessageType tags a stream message.
type MessageType string

const (
	MessageNodeUpdate      MessageType = "NODE_UPDATE"
	MessageSystemStatus    MessageType = "SYSTEM_STATUS"
	MessageHealthUpdate    MessageType = "HEALTH_UPDATE"
	MessageAlertUpdate     MessageType = "ALERT_UPDATE"
	MessageAlertRuleUpdate MessageType = "ALERT_RULE_UPDATE"
	MessageUsersUpdate     MessageType = "USERS_UPDATE"
)

// Message is the envelope for every push update; one message per logical event.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// NodeUpdate wraps a node snapshot.
func NodeUpdate(n Node) Message { return Message{Type: MessageNodeUpdate, Payload: n} }

// SystemStatusUpdate wraps a live fleet summary.
func SystemStatusUpdate(s SystemStatus) Message { return Message{Type: MessageSystemStatus, Payload: s} }

// HealthUpdate wraps a fleet health result.
func HealthUpdate(h SystemHealth) Message { return Message{Type: MessageHealthUpdate, Payload: h} }

// AlertUpdate wraps a new or changed alert.
func AlertUpdate(a Alert) Message { return Message{Type: MessageAlertUpdate, Payload: a} }

// AlertRuleUpdate wraps a new or changed rule.
func AlertRuleUpdate(r AlertRule) Message { return Message{Type: MessageAlertRuleUpdate, Payload: r} }

// UsersUpdate wraps the account roster.
func UsersUpdate(u []User) Message { return Message{Type: MessageUsersUpdate, Payload: u} }
