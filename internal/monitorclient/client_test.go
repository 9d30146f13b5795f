package monitorclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu       sync.Mutex
	received []Envelope
	status   int
	notOK    bool
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if r.URL.Path != PostPath || json.NewDecoder(r.Body).Decode(&env) != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.received = append(h.received, env)
	status, notOK := h.status, h.notOK
	h.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	fmt.Fprintf(w, `{"ok":%t}`, !notOK)
}

func (h *fakeHub) envelopes() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Envelope(nil), h.received...)
}

func testIdentity() Identity {
	return Identity{ID: "ctrl-01", IP: "10.0.0.3", Type: TypeController, Protocol: "modbus", LadderID: "modbus-ladder-v1", TargetID: "plc-01", TargetIP: "10.0.0.2"}
}

func TestEnqueueDropsOldest(t *testing.T) {
	c := New(Config{HubURL: "http://127.0.0.1:1"}, testIdentity())

	for i := 1; i <= 11; i++ {
		c.Enqueue(ActionNormal, fmt.Sprintf("evento %d", i))
	}

	pending := c.Pending()
	require.Len(t, pending, DefaultQueueSize)
	for i, ev := range pending {
		assert.Equal(t, fmt.Sprintf("normal: evento %d", i+2), ev.Message)
	}
}

func TestEventShape(t *testing.T) {
	c := New(Config{}, testIdentity())
	c.now = func() time.Time { return time.Date(2024, 11, 2, 10, 4, 5, 0, time.Local) }

	ev := c.Enqueue(ActionAlert, "lost connection to target PLC")
	assert.Equal(t, "alert", ev.Type)
	assert.Equal(t, "2024-11-02 10:04:05", ev.Time)
	assert.Equal(t, "alert: lost connection to target PLC", ev.Message)
	assert.Len(t, ev.ID, 36)
}

func TestLoginCarriesIdentity(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := New(Config{HubURL: srv.URL}, testIdentity())
	require.NoError(t, c.Login(context.Background()))
	assert.True(t, c.Connected())

	got := hub.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, "ctrl-01", got[0].ID)
	assert.Equal(t, ActionLogin, got[0].Action)

	var id Identity
	require.NoError(t, json.Unmarshal(got[0].Data, &id))
	assert.Equal(t, testIdentity(), id)
}

func TestDeliveryFailureDisconnects(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := New(Config{HubURL: srv.URL}, testIdentity())
	require.NoError(t, c.Login(context.Background()))

	hub.mu.Lock()
	hub.status = http.StatusInternalServerError
	hub.mu.Unlock()

	err := c.Report(context.Background(), c.Enqueue(ActionNormal, "x"))
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.False(t, c.Connected())

	hub.mu.Lock()
	hub.status, hub.notOK = 0, true
	hub.mu.Unlock()
	assert.ErrorIs(t, c.Login(context.Background()), ErrDeliveryFailure)
}

func TestUnreachableHub(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{HubURL: url, Timeout: time.Second}, testIdentity())
	assert.ErrorIs(t, c.Login(context.Background()), ErrDeliveryFailure)
	assert.False(t, c.Connected())
}

func TestRunLogsInThenDrainsInOrder(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := New(Config{HubURL: srv.URL, ReportInterval: 10 * time.Millisecond}, testIdentity())
	c.Enqueue(ActionNormal, "primeiro")
	c.Enqueue(ActionWarning, "segundo")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(hub.envelopes()) >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	got := hub.envelopes()
	assert.Equal(t, ActionLogin, got[0].Action)
	assert.Equal(t, ActionNormal, got[1].Action)
	assert.Equal(t, ActionWarning, got[2].Action)

	var ev Event
	require.NoError(t, json.Unmarshal(got[2].Data, &ev))
	assert.Equal(t, "warning: segundo", ev.Message)
	assert.Empty(t, c.Pending())
}

func TestHubURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.10:5000", HubURL("10.0.0.10", 5000))
}
