package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pharmacy/internal/config"
)

func newTestClient(url string) *APIClient {
	return NewClient(config.WhatsAppConfig{
		AccessToken:   "secret",
		PhoneNumberID: "12345",
		BaseURL:       url + "/",
		APIVersion:    "v20.0",
	})
}

func TestSendTextMessage(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v20.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).SendTextMessage(context.Background(), SendTextMessageRequest{To: "224600000000", Body: "hello"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "wamid.1", resp.Messages[0].ID)
	assert.Equal(t, "224600000000", payload["to"])
	assert.Equal(t, "text", payload["type"])
}

func TestSendTextMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient","code":131030}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendTextMessage(context.Background(), SendTextMessageRequest{To: "1", Body: "hello"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 131030, apiErr.Code)
	assert.Equal(t, "invalid recipient", apiErr.Message)
}

func TestSendTextMessageRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.2"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendTextMessage(context.Background(), SendTextMessageRequest{To: "1", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendTextMessageRejectsBadInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	_, err := c.SendTextMessage(context.Background(), SendTextMessageRequest{Body: "hello"})
	assert.Error(t, err)

	_, err = c.SendTextMessage(context.Background(), SendTextMessageRequest{To: "1", Body: strings.Repeat("x", MaxTextLength+1)})
	assert.Error(t, err)
}
