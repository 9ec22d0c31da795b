package crm

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/api", slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, err)

	return client
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

	return body
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("", slog.Default())
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestClient_SendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "+5511999990000", body["recipient"])
		assert.Equal(t, "Hi", body["content"])

		_, _ = w.Write([]byte(`{"message_id":"m-1","status":"queued"}`))
	}, WithToken("secret"))

	result, err := client.SendMessage(t.Context(), "+5511999990000", "Hi")
	require.NoError(t, err)
	assert.Equal(t, protocol.DeliveryResult{MessageID: "m-1", Status: "queued"}, result)
}

func TestClient_ContactStore(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/contacts/c-1":
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "qualified", decodeBody(t, r)["stage"])
			w.WriteHeader(http.StatusNoContent)
		case "/api/contacts/c-1/lead-score":
			assert.InDelta(t, 10, decodeBody(t, r)["delta"], 0)
			_, _ = w.Write([]byte(`{"score":60}`))
		case "/api/tasks":
			assert.Equal(t, "Call back", decodeBody(t, r)["title"])
			_, _ = w.Write([]byte(`{"id":"task-9"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	require.NoError(t, client.UpdateContact(t.Context(), "c-1", map[string]any{"stage": "qualified"}))

	score, err := client.AdjustLeadScore(t.Context(), "c-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 60, score)

	id, err := client.CreateTask(t.Context(), protocol.Task{ContactID: "c-1", Title: "Call back"})
	require.NoError(t, err)
	assert.Equal(t, "task-9", id)
}

func TestClient_RunTask(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/tasks/classify_intent", r.URL.Path)
		_, _ = w.Write([]byte(`{"intent":"pricing","confidence":0.9}`))
	})

	result, err := client.RunTask(t.Context(), "classify_intent", map[string]any{"text": "price?"})
	require.NoError(t, err)
	assert.Equal(t, "pricing", result["intent"])
}

func TestClient_RejectedRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown contact", http.StatusNotFound)
	})

	err := client.UpdateContact(t.Context(), "missing", map[string]any{})
	require.ErrorIs(t, err, ErrRequestRejected)
	assert.Contains(t, err.Error(), "unknown contact")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"score":5}`))
	}, WithMaxRetries(1))

	score, err := client.AdjustLeadScore(t.Context(), "c-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ServerErrorAfterRetries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithMaxRetries(0))

	_, err := client.SendMessage(t.Context(), "c-1", "hi")
	assert.ErrorIs(t, err, ErrServerError)
}
