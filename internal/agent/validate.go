package agent

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/rag"
)

// validate is the shared validator instance; it is safe for concurrent use.
var validate = validator.New()

// validateQuestion checks the trimmed question is present and the raw
// question is within maxLen characters.
func validateQuestion(trimmed, raw string, maxLen int) error {
	if err := validate.Var(trimmed, "required"); err != nil {
		return apperr.Validation("question", "Question is required")
	}
	err := validate.Var(raw, fmt.Sprintf("max=%d", maxLen))
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperr.Validation("question",
			fmt.Sprintf("Question too long. Maximum %d characters allowed.", maxLen))
	}
	return apperr.Internal("question validation failed", err)
}

func invalidModel() error {
	return apperr.Validation("model", "Invalid model selected")
}

// validateHistory rejects client-supplied turns whose role is neither user
// nor assistant.
func validateHistory(msgs []rag.Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return apperr.Validation("conversationHistory",
				fmt.Sprintf("Message %d has invalid role %q; expected user or assistant", i, m.Role))
		}
	}
	return nil
}
