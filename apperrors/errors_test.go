package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeNotFound, 404},
		{ErrCodeAlreadyExists, 409},
		{ErrCodeInvalidInput, 400},
		{ErrCodeUnauthorized, 401},
		{ErrCodeProfileUnresolvable, 422},
		{ErrCodeTimeout, 504},
		{ErrCodeDatabase, 500},
		{ErrCodeInternal, 500},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			require.Equal(t, tc.status, New(tc.code, "msg", nil).HTTPStatus())
		})
	}
}

func TestCodeOfUnwrapsChain(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("approve: %w", Database("failed to save player", cause))

	require.Equal(t, ErrCodeDatabase, CodeOf(wrapped))
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, ErrCodeInternal, CodeOf(cause))
}

func TestRespond(t *testing.T) {
	app := fiber.New()
	app.Get("/known", func(c *fiber.Ctx) error {
		return Respond(c, NotFound("could not find user bob"))
	})
	app.Get("/unknown", func(c *fiber.Ctx) error {
		return Respond(c, errors.New("pq: secret internals"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/known", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, "could not find user bob", decoded["error"])
	require.Equal(t, "NOT_FOUND", decoded["code"])

	resp, err = app.Test(httptest.NewRequest("GET", "/unknown", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 500, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	require.NotContains(t, string(body), "secret internals")
}
