package domain

// Roles a turn can carry. System is only used for prompt assembly and is never
// persisted.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic (role, content) pair used for history
// reads and LLM prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
