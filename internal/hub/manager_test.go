package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/cache"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/websocket"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []websocket.MensagemWS
}

func (b *fakeBroadcaster) Publicar(m websocket.MensagemWS) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
}

func plcIdentity() Identity {
	return Identity{ID: "plc-01", IP: "10.0.0.11", Type: "PLC", Protocol: "modbus", LadderID: "modbus-ladder"}
}

func ctrlIdentity() Identity {
	return Identity{ID: "ctrl-01", IP: "10.0.0.21", Type: "controller", Protocol: "modbus", TargetID: "plc-01", TargetIP: "10.0.0.11"}
}

func event(action, msg string) monitorclient.Event {
	return monitorclient.Event{ID: "e", Type: action, Time: "2026-01-02 03:04:05", Message: msg}
}

func newManager(t *testing.T, opts ...Option) (*DataManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewDataManager(append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func TestReportBeforeLoginIsIgnored(t *testing.T) {
	m, _ := newManager(t)

	err := m.HandleReport("plc-01", event("normal", "ok"))
	assert.ErrorIs(t, err, ErrUnknownAgent)

	_, ok := m.QueryState("plc-01")
	assert.False(t, ok)
	assert.Empty(t, m.QueryAll(""))
}

func TestLoginThenReportAndTimeout(t *testing.T) {
	m, clock := newManager(t)

	require.NoError(t, m.HandleLogin(plcIdentity()))
	clock.Advance(2 * time.Minute)
	require.NoError(t, m.HandleReport("plc-01", event("normal", "ok")))

	s, ok := m.QueryState("plc-01")
	require.True(t, ok)
	assert.True(t, s.Online)
	assert.Equal(t, State{
		ID:            "plc-01",
		Type:          "plc",
		IP:            "10.0.0.11",
		Protocol:      "modbus",
		LastUpdateT:   "2026-01-02 03:06:05",
		ReportT:       2,
		Online:        true,
		TotalRptCount: 1,
		LadderInfo:    "modbus-ladder",
	}, s)

	clock.Advance(29 * time.Second)
	s, _ = m.QueryState("plc-01")
	assert.True(t, s.Online)

	clock.Advance(time.Second)
	s, _ = m.QueryState("plc-01")
	assert.False(t, s.Online)
}

func TestExceptionsAndWindows(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.HandleLogin(ctrlIdentity()))

	for i := 0; i < 12; i++ {
		require.NoError(t, m.HandleReport("ctrl-01", event("normal", fmt.Sprintf("n%d", i))))
	}
	require.NoError(t, m.HandleReport("ctrl-01", event("warning", "w")))
	require.NoError(t, m.HandleReport("ctrl-01", event("alert", "a")))

	r, ok := m.QueryReports("ctrl-01")
	require.True(t, ok)
	require.Len(t, r.Report, RecordLimit)
	assert.Equal(t, "n4", r.Report[0].Message)
	assert.Equal(t, "a", r.Report[RecordLimit-1].Message)
	require.Len(t, r.Alert, 2)
	assert.Equal(t, "w", r.Alert[0].Message)

	s, _ := m.QueryState("ctrl-01")
	assert.Equal(t, 14, s.TotalRptCount)
	assert.Equal(t, 2, s.ExceptCount)
	assert.Equal(t, "plc-01", s.TargetID)
	assert.Equal(t, "10.0.0.11", s.TargetIP)
	assert.Empty(t, s.LadderInfo)

	_, ok = m.QueryReports("nada")
	assert.False(t, ok)
}

func TestRepeatLoginUpdatesAndReplacesVariant(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.HandleLogin(plcIdentity()))
	require.NoError(t, m.HandleReport("plc-01", event("alert", "x")))

	id := plcIdentity()
	id.IP = "10.0.0.99"
	id.Protocol = "s7comm"
	require.NoError(t, m.HandleLogin(id))

	s, _ := m.QueryState("plc-01")
	assert.Equal(t, "10.0.0.99", s.IP)
	assert.Equal(t, "s7comm", s.Protocol)
	assert.Equal(t, 1, s.ExceptCount, "histórico preservado")

	ctrl := ctrlIdentity()
	ctrl.ID = "plc-01"
	require.NoError(t, m.HandleLogin(ctrl))
	s, _ = m.QueryState("plc-01")
	assert.Equal(t, "controller", s.Type)
	assert.Empty(t, s.LadderInfo)
	assert.Equal(t, "plc-01", s.TargetID)

	assert.Empty(t, m.QueryAll(monitorclient.TypePLC))
	assert.Len(t, m.QueryAll(monitorclient.TypeController), 1)
}

func TestInvalidLogin(t *testing.T) {
	m, _ := newManager(t)

	id := plcIdentity()
	id.IP = "nao-e-ip"
	assert.ErrorIs(t, m.HandleLogin(id), ErrInvalidLogin)

	id = plcIdentity()
	id.Type = "sensor"
	assert.ErrorIs(t, m.HandleLogin(id), ErrInvalidLogin)
	assert.Empty(t, m.QueryAll(""))
}

func TestHandleEnvelope(t *testing.T) {
	m, _ := newManager(t)

	data, _ := json.Marshal(plcIdentity())
	require.NoError(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "LOGIN", Data: data}))

	data, _ = json.Marshal(event("", "sem tipo"))
	require.NoError(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "Warning", Data: data}))

	r, _ := m.QueryReports("plc-01")
	require.Len(t, r.Alert, 1)
	assert.Equal(t, "warning", r.Alert[0].Type)

	// o tipo do evento não substitui a ação do envelope
	data, _ = json.Marshal(event("alert", "disfarçado"))
	require.NoError(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "normal", Data: data}))
	s, _ := m.QueryState("plc-01")
	assert.Equal(t, 1, s.ExceptCount)
	r, _ = m.QueryReports("plc-01")
	assert.Equal(t, "normal", r.Report[len(r.Report)-1].Type)

	assert.ErrorIs(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "reboot"}), ErrUnknownAction)
	assert.ErrorIs(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "login", Data: json.RawMessage(`[]`)}), ErrInvalidLogin)
}

func TestMirrorAndBroadcast(t *testing.T) {
	mem := cache.NewMemoryCache()
	b := &fakeBroadcaster{}
	m, _ := newManager(t, WithCache(mem), WithBroadcaster(b))

	require.NoError(t, m.HandleLogin(plcIdentity()))
	require.NoError(t, m.HandleReport("plc-01", event("alert", "tamper")))

	var s State
	ok, err := cache.GetJSON(mem, cache.AgentStateKey("plc-01"), &s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.ExceptCount)

	require.Len(t, b.msgs, 2)
	assert.Equal(t, "login", b.msgs[0].Tipo)
	assert.Equal(t, "report", b.msgs[1].Tipo)
	assert.Equal(t, "alert", b.msgs[1].Action)
	assert.Equal(t, "plc-01", b.msgs[1].AgentID)
	assert.Equal(t, event("alert", "tamper"), b.msgs[1].Dados)
}

func TestReportLabelsAreBounded(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := newManager(t, WithMetrics(reg))
	require.NoError(t, m.HandleLogin(plcIdentity()))

	for i := 0; i < 50; i++ {
		data, _ := json.Marshal(event(fmt.Sprintf("x%d", i), "inventado"))
		require.NoError(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: "normal", Data: data}))
		assert.ErrorIs(t, m.Handle(monitorclient.Envelope{ID: "plc-01", Action: fmt.Sprintf("y%d", i)}), ErrUnknownAction)
	}

	// login/accepted, normal/accepted e unknown/invalid
	assert.Equal(t, 3, testutil.CollectAndCount(reg.HubReportsTotal))
	assert.Equal(t, 50.0, testutil.ToFloat64(reg.HubReportsTotal.WithLabelValues("normal", "accepted")))

	assert.ErrorIs(t, m.HandleReport("plc-01", event("x123", "direto")), ErrUnknownAction)
	s, _ := m.QueryState("plc-01")
	assert.Equal(t, 50, s.TotalRptCount)
	assert.Zero(t, s.ExceptCount)
}
