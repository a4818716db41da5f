package tokenizer

import (
	"strings"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// ValidRole reports whether role is one of the chat roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

var rolePrefix = map[string]string{
	RoleSystem:    "System: ",
	RoleUser:      "User: ",
	RoleAssistant: "Assistant: ",
}

// RenderConversation renders msgs in the chat template and leaves the
// assistant turn open.
func RenderConversation(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		p, ok := rolePrefix[m.Role]
		if !ok {
			continue
		}
		b.WriteString(p)
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	b.WriteString(rolePrefix[RoleAssistant])
	return b.String()
}

// EncodeConversation renders and encodes msgs. The result is never empty:
// an empty conversation or empty encoding yields the sentinel token.
func (a *Adapter) EncodeConversation(msgs []Message) []int {
	if len(msgs) == 0 {
		return []int{SentinelToken}
	}
	ids := a.Encode(RenderConversation(msgs))
	if len(ids) == 0 {
		return []int{SentinelToken}
	}
	return ids
}
