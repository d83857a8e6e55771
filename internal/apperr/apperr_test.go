package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
		{Kind("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.HTTPStatus(), string(tt.kind))
	}
}

func TestKindOf_WalksWrappedChain(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("agent: generate: %w", Timeout("generation timed out", errors.New("deadline")))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestPublicMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "question: must not be empty", PublicMessage(Validation("question", "must not be empty")))
	assert.Equal(t, genericMessage, PublicMessage(Internal("snapshot write failed", errors.New("disk full"))))
	assert.Equal(t, genericMessage, PublicMessage(errors.New("raw driver error")))

	nf := NotFound(`model "x" not found`, "ollama pull x", nil)
	assert.Equal(t, `model "x" not found`, PublicMessage(nf))
}

func TestRateLimited_CarriesReset(t *testing.T) {
	t.Parallel()

	reset := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, ok := As(fmt.Errorf("wrapped: %w", RateLimited(reset)))
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, e.Kind)
	assert.Equal(t, reset, e.ResetAt)
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Internal("embedding request failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
