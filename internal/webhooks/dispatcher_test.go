package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec-test"

type captured struct {
	body    []byte
	headers http.Header
}

type target struct {
	mu     sync.Mutex
	status int
	calls  []captured
}

func (tg *target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	tg.mu.Lock()
	tg.calls = append(tg.calls, captured{body: body, headers: r.Header.Clone()})
	status := tg.status
	tg.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (tg *target) snapshot() []captured {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return append([]captured(nil), tg.calls...)
}

func newDispatcher(t *testing.T, urls ...string) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(config.WebhooksConfig{Targets: urls, Secret: testSecret, Timeout: time.Second}, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	return d
}

func sampleEvent() consumers.Event {
	return consumers.Event{
		ID:   uuid.New(),
		Type: enums.EventOrderStatusChanged,
		Envelope: outbox.PayloadEnvelope{
			OccurredAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
			Actor:      &outbox.ActorRef{UserID: uuid.New(), Role: "chef"},
			Data:       json.RawMessage(`{"orderId":"abc","toStatus":"ready"}`),
		},
	}
}

func TestDispatcherSignsAndPostsToEveryTarget(t *testing.T) {
	first, second := &target{}, &target{}
	srv1, srv2 := httptest.NewServer(first), httptest.NewServer(second)
	defer srv1.Close()
	defer srv2.Close()

	event := sampleEvent()
	require.NoError(t, newDispatcher(t, srv1.URL, " ", srv2.URL).Handle(context.Background(), event))

	for _, tg := range []*target{first, second} {
		calls := tg.snapshot()
		require.Len(t, calls, 1)
		call := calls[0]
		assert.True(t, Verify([]byte(testSecret), call.body, call.headers.Get(SignatureHeader)))
		assert.Equal(t, string(enums.EventOrderStatusChanged), call.headers.Get(EventHeader))
		assert.Equal(t, event.ID.String(), call.headers.Get(DeliveryHeader))
		assert.Equal(t, "application/json", call.headers.Get("Content-Type"))

		var delivery Delivery
		require.NoError(t, json.Unmarshal(call.body, &delivery))
		assert.Equal(t, event.ID, delivery.ID)
		assert.JSONEq(t, string(event.Envelope.Data), string(delivery.Data))
	}
}

func TestDispatcherFailsOnNon2xx(t *testing.T) {
	ok, broken := &target{}, &target{status: http.StatusBadGateway}
	srvOK, srvBroken := httptest.NewServer(ok), httptest.NewServer(broken)
	defer srvOK.Close()
	defer srvBroken.Close()

	err := newDispatcher(t, srvOK.URL, srvBroken.URL).Handle(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Len(t, ok.snapshot(), 1)
}

func TestDispatcherFailsOnUnreachableTarget(t *testing.T) {
	srv := httptest.NewServer(&target{})
	url := srv.URL
	srv.Close()

	err := newDispatcher(t, url).Handle(context.Background(), sampleEvent())
	assert.Error(t, err)
}

func TestNewDispatcherValidation(t *testing.T) {
	logg := logger.New(logger.Options{Output: io.Discard})
	_, err := NewDispatcher(config.WebhooksConfig{Secret: testSecret}, logg)
	assert.Error(t, err)
	_, err = NewDispatcher(config.WebhooksConfig{Targets: []string{"http://localhost"}}, logg)
	assert.Error(t, err)

	d, err := NewDispatcher(config.WebhooksConfig{Targets: []string{"http://localhost"}, Secret: testSecret}, logg)
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, d.httpClient.Timeout)
	assert.True(t, d.Handles(enums.EventChangeBroadcast))
	assert.False(t, d.Handles("order.unknown"))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":"1"}`)
	sig := Sign([]byte(testSecret), body)
	assert.True(t, Verify([]byte(testSecret), body, sig))
	assert.False(t, Verify([]byte(testSecret), []byte(`{"id":"2"}`), sig))
	assert.False(t, Verify([]byte("other"), body, sig))
}
