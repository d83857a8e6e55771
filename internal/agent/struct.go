package agent

import "github.com/54b3r/docqa-go/internal/rag"

// Request is a single question put to the Assistant.
type Request struct {
	// Question is the user's question. Surrounding whitespace is trimmed.
	Question string `json:"question"`
	// Model is the generation model to use. Empty selects the default model.
	Model string `json:"model,omitempty"`
	// History is the caller's view of the prior conversation. When nil the
	// process-wide conversation history is used instead.
	History []rag.Message `json:"conversationHistory,omitempty"`
}

// Source describes one retrieved fragment that informed an answer.
type Source struct {
	// Text is a preview of the fragment, truncated with "..." when long.
	Text string `json:"text"`
	// FileName is the document the fragment came from.
	FileName string `json:"fileName"`
	// Similarity is the score with three decimals, or "N/A" when the store
	// cannot report a similarity.
	Similarity string `json:"similarity"`
}

// Response is the Assistant's answer and the sources it was grounded on.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
