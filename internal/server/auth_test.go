package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		apiKey      string
		header      string
		wantCode    int
		wantMessage string
		wantInvalid bool
	}{
		{name: "disabled without key", apiKey: "", header: "", wantCode: http.StatusOK},
		{name: "disabled ignores junk header", apiKey: "", header: "Basic abc", wantCode: http.StatusOK},
		{name: "missing header", apiKey: "secret", wantCode: http.StatusUnauthorized, wantMessage: "authorization required"},
		{name: "basic scheme", apiKey: "secret", header: "Basic dXNlcjpwYXNz", wantCode: http.StatusUnauthorized, wantMessage: "authorization required"},
		{name: "wrong token", apiKey: "secret", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantMessage: "invalid token", wantInvalid: true},
		{name: "token prefix only", apiKey: "secret", header: "Bearer secre", wantCode: http.StatusUnauthorized, wantMessage: "invalid token", wantInvalid: true},
		{name: "correct token", apiKey: "secret", header: "Bearer secret", wantCode: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantCode: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			if tc.wantCode == http.StatusOK {
				return
			}

			challenge := w.Header().Get("WWW-Authenticate")
			if !strings.HasPrefix(challenge, `Bearer realm="docqa"`) {
				t.Errorf("unexpected challenge %q", challenge)
			}
			if got := strings.Contains(challenge, "invalid_token"); got != tc.wantInvalid {
				t.Errorf("invalid_token in challenge: expected %v, got %q", tc.wantInvalid, challenge)
			}

			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode 401 body: %v", err)
			}
			if body.Error != "unauthorized" || body.Message != tc.wantMessage {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Bearer abc123":      "abc123",
		"BEARER abc123":      "abc123",
		"Bearer   padded  ":  "padded",
		"Basic dXNlcjpwYXNz": "",
		"Bearer":             "",
		"abc123":             "",
		"":                   "",
	}

	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("header=%q: expected %q, got %q", header, want, got)
		}
	}
}
