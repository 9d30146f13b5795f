package scandetect

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []monitorclient.Event
}

func (r *fakeReporter) Enqueue(action, msg string) monitorclient.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := monitorclient.Event{Type: action, Message: action + ": " + msg}
	r.events = append(r.events, ev)
	return ev
}

func (r *fakeReporter) snapshot() []monitorclient.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]monitorclient.Event(nil), r.events...)
}

// chanSource entrega pacotes de um canal até ser fechada
type chanSource struct {
	packets chan Packet
	closed  chan struct{}
	once    sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{packets: make(chan Packet), closed: make(chan struct{})}
}

func (s *chanSource) ReadPacket() (Packet, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-s.closed:
		return Packet{}, net.ErrClosed
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func syn(src string, port uint16) Packet {
	return Packet{Src: src, DstPort: port, Flags: flagSYN}
}

func TestAlertOncePerSource(t *testing.T) {
	rep := &fakeReporter{}
	d := New(rep, WithThreshold(5))

	for port := uint16(1); port <= 4; port++ {
		assert.False(t, d.Observe(syn("10.0.0.66", port)))
	}
	// porta repetida não conta
	assert.False(t, d.Observe(syn("10.0.0.66", 4)))
	assert.True(t, d.Observe(syn("10.0.0.66", 5)))

	for port := uint16(6); port <= 20; port++ {
		assert.False(t, d.Observe(syn("10.0.0.66", port)))
	}

	events := rep.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, monitorclient.ActionAlert, events[0].Type)
	assert.Equal(t, "alert: Nmap scan detected from 10.0.0.66 and try scan more than 5 ports", events[0].Message)
}

func TestSourcesAreCountedSeparately(t *testing.T) {
	rep := &fakeReporter{}
	d := New(rep, WithThreshold(3))

	d.Observe(syn("10.0.0.1", 80))
	d.Observe(syn("10.0.0.2", 81))
	d.Observe(syn("10.0.0.1", 82))
	d.Observe(syn("10.0.0.2", 83))
	assert.Empty(t, rep.snapshot())

	assert.True(t, d.Observe(syn("10.0.0.2", 84)))
	require.Len(t, rep.snapshot(), 1)
	assert.Contains(t, rep.snapshot()[0].Message, "10.0.0.2")
}

func TestOnlyPureSYNCounts(t *testing.T) {
	d := New(&fakeReporter{}, WithThreshold(1))

	assert.False(t, d.Observe(Packet{Src: "10.0.0.3", DstPort: 22, Flags: flagSYN | flagACK}))
	assert.False(t, d.Observe(Packet{Src: "10.0.0.3", DstPort: 22, Flags: flagACK}))
	assert.True(t, d.Observe(syn("10.0.0.3", 22)))
}

func TestDefaultThreshold(t *testing.T) {
	rep := &fakeReporter{}
	d := New(rep, WithThreshold(0))

	for port := uint16(1); port < DefaultThreshold; port++ {
		require.False(t, d.Observe(syn("10.0.0.9", port)))
	}
	assert.True(t, d.Observe(syn("10.0.0.9", DefaultThreshold)))
}

func TestRunReadsUntilCancel(t *testing.T) {
	rep := &fakeReporter{}
	d := New(rep, WithThreshold(3))
	src := newChanSource()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, src) }()

	for port := uint16(100); port < 103; port++ {
		src.packets <- syn("192.168.1.50", port)
	}
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("detector não encerrou")
	}
}

type failingSource struct{}

func (failingSource) ReadPacket() (Packet, error) { return Packet{}, errors.New("interface caiu") }
func (failingSource) Close() error                { return nil }

func TestRunReturnsReadError(t *testing.T) {
	d := New(&fakeReporter{})
	err := d.Run(context.Background(), failingSource{})
	assert.ErrorContains(t, err, "interface caiu")
}

func TestParseTCP(t *testing.T) {
	segment := make([]byte, 20)
	segment[2], segment[3] = 0x01, 0xF6 // 502
	segment[13] = flagSYN

	p, err := parseTCP("10.0.0.4", segment)
	require.NoError(t, err)
	assert.Equal(t, Packet{Src: "10.0.0.4", DstPort: 502, Flags: flagSYN}, p)
	assert.True(t, p.SYN())

	_, err = parseTCP("10.0.0.4", segment[:10])
	assert.ErrorIs(t, err, ErrShortSegment)
}
