// Package generation talks to the text generation service.
//
// Callers build role-tagged messages, pick a named sampling profile and get
// back plain text with any Markdown code fences removed. Every failure of
// the service surfaces as an *UnavailableError so the caller can stop
// cleanly instead of feeding an error string back into the loop.
package generation

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
