package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelnyxSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var payload telnyxMessagePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "+15550001111", payload.To)
		assert.Equal(t, "profile", payload.MessagingProfileID)

		_, _ = w.Write([]byte(`{"data":{"id":"msg_123","to":[{"status":"queued"}]}}`))
	}))
	defer srv.Close()

	gw := NewTelnyxGateway("key", "profile", nil)
	gw.baseURL = srv.URL

	result, err := gw.Send(context.Background(), "+15550001111", "+15550002222", "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg_123", result.MessageID)
	assert.Equal(t, "queued", result.Status)
}

func TestTelnyxSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"title":"Invalid number","detail":"to must be E.164"}]}`))
	}))
	defer srv.Close()

	gw := NewTelnyxGateway("key", "profile", nil)
	gw.baseURL = srv.URL

	_, err := gw.Send(context.Background(), "+15550001111", "+15550002222", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid number")
}

func TestTelnyxSendValidation(t *testing.T) {
	gw := NewTelnyxGateway("key", "profile", nil)
	_, err := gw.Send(context.Background(), "", "+15550002222", "hello")
	assert.Error(t, err)
	_, err = gw.Send(context.Background(), "+15550001111", "+15550002222", "   ")
	assert.Error(t, err)
}

func TestTwilioSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "+15550002222", r.PostForm.Get("From"))
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	gw := NewTwilioGateway("sid", "token", "+15550002222", nil)
	gw.baseURL = srv.URL

	result, err := gw.Send(context.Background(), "+15550001111", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", result.MessageID)
}

func TestTwilioSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The 'To' number is not valid"}`))
	}))
	defer srv.Close()

	gw := NewTwilioGateway("sid", "token", "+15550002222", nil)
	gw.baseURL = srv.URL

	_, err := gw.Send(context.Background(), "+1555", "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid")
}
