package agent

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// PromptStyle selects the instruction template used for generation.
type PromptStyle string

const (
	// PromptFull includes prior conversation and asks for a confidence
	// score plus a short justification.
	PromptFull PromptStyle = "full"
	// PromptBasic includes only retrieved context and the question.
	PromptBasic PromptStyle = "basic"
)

// ParsePromptStyle maps a configuration value to a PromptStyle. Unknown or
// empty values select PromptFull.
func ParsePromptStyle(s string) PromptStyle {
	if PromptStyle(strings.ToLower(strings.TrimSpace(s))) == PromptBasic {
		return PromptBasic
	}
	return PromptFull
}

// noDocumentsAnswer is returned without a generation call when there is
// neither retrieved context nor prior conversation to answer from.
const noDocumentsAnswer = "I don't have any documents to reference. Please upload some documents first."

const fullTemplate = `You are a document assistant. Your task is to answer the following question based on the provided document excerpts and conversation history.

Conversation History:
%s

Context:
%s

Question: %s

Please follow these instructions:
1. Provide a clear and concise answer to the question.
2. If the answer is not found in the documents, state that clearly.
3. Base your answer *only* on the information provided in the context and history above.
4. After your answer, provide a confidence score (from 0 to 1) indicating how confident you are in your answer.
5. Finally, briefly explain the reasoning for your answer and confidence score.`

const basicTemplate = `Answer the question using only the document excerpts below. If the answer is not in the excerpts, say that it is not in the provided documents.

Context:
%s

Question: %s

Answer:`

// buildContext renders retrieved fragments as numbered sources.
func buildContext(hits []rag.ScoredChunk) string {
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("Source %d (%s):\n%s", i+1, h.Chunk.Metadata.FileName, h.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// renderHistory renders prior turns one per line as "role: content".
func renderHistory(msgs []rag.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// buildPrompt fills the template for style. history is ignored by
// PromptBasic.
func buildPrompt(style PromptStyle, contextText, history, question string) string {
	if style == PromptBasic {
		return fmt.Sprintf(basicTemplate, contextText, question)
	}
	return fmt.Sprintf(fullTemplate, history, contextText, question)
}

// preview truncates text to limit characters, appending "..." when anything
// was cut.
func preview(text string, limit int) string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
