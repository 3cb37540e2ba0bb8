package conversations

import "slices"

// Message is a single message in a conversation.
type Message struct {
	Role    Role   `json:"role" jsonschema:"enum=user,enum=assistant,enum=system"`
	Content string `json:"content"`
}

// Role describes who the message is from
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// History is the ordered list of messages sent to the backend with every
// query. Ordering: oldest -> newest.
type History []Message

// Clone returns a copy of the history that does not share the backing array
// with h. A nil history clones to an empty, non-nil one so it always
// serializes as a JSON array.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	return slices.Clone(h)
}

// Valid reports whether every message carries a known role.
func (h History) Valid() bool {
	for _, message := range h {
		switch message.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return false
		}
	}
	return true
}
