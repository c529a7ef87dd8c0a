package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a question and the answer given to it, as fed back to the retrieval chain
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Message is a role-tagged entry of the display history
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
