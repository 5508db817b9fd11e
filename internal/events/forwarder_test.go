package events_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/resilience"
)

func TestForwarderSignsPayload(t *testing.T) {
	fixed := time.Unix(1773567000, 0)
	eventID := uuid.NewString()
	var gotSig, gotTS, gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotTS = r.Header.Get("X-Timestamp")
		gotEvent = r.Header.Get("X-Event-ID")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	fwd := &events.Forwarder{
		URL:    srv.URL,
		Secret: "notify-secret",
		HTTP:   resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		Now:    func() time.Time { return fixed },
	}
	p := events.NotifyPayload{EventID: eventID, Topic: events.TopicOrderConfirmed, Payload: json.RawMessage(`{"orderNumber":"ORD-1"}`)}
	require.NoError(t, fwd.Forward(context.Background(), p))

	require.Equal(t, eventID, gotEvent)
	require.Equal(t, "1773567000", gotTS)
	require.Equal(t, events.Signature("notify-secret", fixed.Unix(), eventID, gotBody), gotSig)
	require.Len(t, gotSig, 64)
}

func TestNotifyHandlerSkipsRetryOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	h := events.NotifyHandler{Forwarder: &events.Forwarder{URL: srv.URL, HTTP: resilience.HTTPClient{Client: srv.Client()}}}
	body, _ := json.Marshal(events.NotifyPayload{EventID: uuid.NewString(), Topic: events.TopicPaymentFailed})
	err := h.ProcessTask(context.Background(), asynq.NewTask(events.TaskNotifyOrderEvent, body))
	require.ErrorIs(t, err, events.ErrRejected)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotifyHandlerRetriesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := events.NotifyHandler{Forwarder: &events.Forwarder{URL: srv.URL, HTTP: resilience.HTTPClient{Client: srv.Client()}}}
	body, _ := json.Marshal(events.NotifyPayload{EventID: uuid.NewString(), Topic: events.TopicPaymentFailed})
	err := h.ProcessTask(context.Background(), asynq.NewTask(events.TaskNotifyOrderEvent, body))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
