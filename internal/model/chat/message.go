package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// ParseRole maps a wire role onto Role. The legacy "ai" sender used by older
// clients is accepted as an assistant alias.
func ParseRole(raw string) (Role, bool) {
	switch raw {
	case "ai", "bot":
		return RoleAssistant, true
	}
	role := Role(raw)
	return role, role.Valid()
}

// Message is a single turn of a session.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
