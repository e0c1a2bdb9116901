package retrieval

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single prior conversation message.
type Turn struct {
	Role    string
	Content string
}
