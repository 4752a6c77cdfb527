package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noteguard/noteguard/internal/password"
	"github.com/noteguard/noteguard/internal/shared"
)

func TestWantsJSON(t *testing.T) {
	cases := []struct {
		accept      string
		contentType string
		want        bool
	}{
		{"application/json", "", true},
		{"text/html,application/xhtml+xml,*/*;q=0.8", "", false},
		{"application/problem+json", "", true},
		{"", "application/json; charset=utf-8", true},
		{"*/*", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.accept != "" {
			req.Header.Set("Accept", tc.accept)
		}
		if tc.contentType != "" {
			req.Header.Set("Content-Type", tc.contentType)
		}
		assert.Equal(t, tc.want, WantsJSON(req), "accept=%q content-type=%q", tc.accept, tc.contentType)
	}
}

func TestStatusBodyFieldNames(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusTooManyRequests, StatusBody{StatusCode: 429, Message: "slow down", RetryAfterSeconds: 60})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 429, body["statusCode"])
	assert.Equal(t, "slow down", body["message"])
	assert.EqualValues(t, 60, body["retryAfterSeconds"])
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("auth: create: %w", shared.ErrEmailTaken), http.StatusConflict},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{password.Validate("short"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, "%v", tc.err)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}
