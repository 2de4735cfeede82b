package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/auth"
	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

const testSecret = "handler-test-secret"

func newActor(role models.Role) services.Actor {
	return services.Actor{UserID: primitive.NewObjectID(), Role: role}
}

func tokenFor(t *testing.T, actor services.Actor) string {
	t.Helper()
	token, err := auth.GenerateJWT(actor.UserID, actor.Role, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// perform sends body (JSON-encoded unless it is a string) with an optional
// bearer token.
func perform(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func serviceErr(kind error, msg string) error {
	return &services.ServiceError{Kind: kind, Message: msg}
}
