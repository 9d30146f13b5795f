package s7plc

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/guard"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/ladder"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

var dbOffsets = []int{0, 2, 4, 6}

func startPLC(t *testing.T, writeIPs []string) (*Server, *memory.Map) {
	t.Helper()

	mem := memory.New()
	layout := ladder.BlockLayout([2]int{1, 2}, [2]int{3, 4}, dbOffsets, memory.Bool)
	require.NoError(t, layout.Declare(mem))
	engine, err := ladder.NewEngine(ladder.MustTable(ladder.S7LadderID, ladder.S7Rungs), layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(mem))

	policy, err := access.NewPolicy(nil, writeIPs)
	require.NoError(t, err)

	s := NewServer(Config{Address: "127.0.0.1:0"}, mem, guard.New(Protocol, policy, zerolog.Nop()), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("servidor não encerrou")
		}
	})
	return s, mem
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, frame []byte) []byte {
	t.Helper()
	_, err := conn.Write(frame)
	require.NoError(t, err)
	resp, err := readFrame(conn)
	require.NoError(t, err)
	return resp
}

func connRequest() []byte {
	return []byte{
		0x03, 0x00, 0x00, 0x16,
		0x11, 0xE0, 0x00, 0x00, 0x00, 0x01, 0x00,
		0xC0, 0x01, 0x0A, 0xC1, 0x02, 0x01, 0x00, 0xC2, 0x02, 0x01, 0x02,
	}
}

func jobFrame(ref uint16, params, data []byte) []byte {
	size := tpktHeaderSz + 3 + jobHeaderSz + len(params) + len(data)
	b := []byte{0x03, 0x00, byte(size >> 8), byte(size), 0x02, 0xF0, 0x80, 0x32, 0x01, 0x00, 0x00}
	b = binary.BigEndian.AppendUint16(b, ref)
	b = binary.BigEndian.AppendUint16(b, uint16(len(params)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	b = append(b, params...)
	return append(b, data...)
}

func anyPointer(ts byte, count, db, offset, bit int) []byte {
	addr := offset<<3 | bit
	return []byte{
		0x12, 0x0A, 0x10, ts,
		byte(count >> 8), byte(count),
		byte(db >> 8), byte(db),
		areaDB,
		byte(addr >> 16), byte(addr >> 8), byte(addr),
	}
}

func readRequest(ref uint16, items ...[]byte) []byte {
	params := []byte{fnReadVar, byte(len(items))}
	for _, it := range items {
		params = append(params, it...)
	}
	return jobFrame(ref, params, nil)
}

func writeRequest(ref uint16, it []byte, ts byte, payload []byte) []byte {
	params := append([]byte{fnWriteVar, 0x01}, it...)
	bits := len(payload) * 8
	if ts == dataTsBit {
		bits = 1
	}
	data := []byte{0x00, ts, byte(bits >> 8), byte(bits)}
	return jobFrame(ref, params, append(data, payload...))
}

func handshake(t *testing.T, conn net.Conn) {
	t.Helper()
	cc := roundTrip(t, conn, connRequest())
	require.Len(t, cc, 22)
	assert.Equal(t, byte(cotpConnConf), cc[5])

	resp := roundTrip(t, conn, jobFrame(1, []byte{fnSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, 0x01, 0xE0}, nil))
	require.Len(t, resp, 27)
	assert.Equal(t, byte(rosctrAckData), resp[8])
	assert.Equal(t, uint16(480), binary.BigEndian.Uint16(resp[25:27]))
}

func TestSetupCommNegotiatesSmallerPDU(t *testing.T) {
	s, _ := startPLC(t, nil)
	conn := dial(t, s)
	roundTrip(t, conn, connRequest())

	resp := roundTrip(t, conn, jobFrame(7, []byte{fnSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0xF0}, nil))
	require.Len(t, resp, 27)
	assert.Equal(t, uint16(7), binary.BigEndian.Uint16(resp[11:13]))
	assert.Equal(t, uint16(240), binary.BigEndian.Uint16(resp[25:27]))
}

func TestWriteInputsRunsLadder(t *testing.T) {
	s, mem := startPLC(t, nil)
	conn := dial(t, s)
	handshake(t, conn)

	// DB1 offsets 0,2,4,6 = 1; DB2 zerado
	resp := roundTrip(t, conn, writeRequest(2, anyPointer(tsByte, 7, 1, 0, 0), dataTsByte, []byte{1, 0, 1, 0, 1, 0, 1}))
	require.Len(t, resp, 22)
	assert.Equal(t, byte(rcSuccess), resp[21])

	resp = roundTrip(t, conn, readRequest(3, anyPointer(tsByte, 7, 3, 0, 0)))
	require.Len(t, resp, 32)
	assert.Equal(t, []byte{rcSuccess, dataTsByte, 0x00, 0x38}, resp[21:25])
	assert.Equal(t, []byte{1, 0, 0, 0, 1, 0, 1}, resp[25:32])

	out, err := mem.ReadAll([]memory.Address{{Block: 4, Offset: 0}, {Block: 4, Offset: 2}, {Block: 4, Offset: 4}, {Block: 4, Offset: 6}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, false, true, true}, out)
}

func TestBitAccess(t *testing.T) {
	s, mem := startPLC(t, nil)
	conn := dial(t, s)
	handshake(t, conn)

	resp := roundTrip(t, conn, writeRequest(2, anyPointer(tsBit, 1, 2, 6, 0), dataTsBit, []byte{0x01}))
	assert.Equal(t, byte(rcSuccess), resp[21])
	v, err := mem.Read(2, 6)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	resp = roundTrip(t, conn, readRequest(3, anyPointer(tsBit, 1, 2, 6, 0)))
	assert.Equal(t, []byte{rcSuccess, dataTsBit, 0x00, 0x01, 0x01}, resp[21:26])

	// só o bit 0 de uma variável bool é gravável
	resp = roundTrip(t, conn, writeRequest(4, anyPointer(tsBit, 1, 2, 6, 3), dataTsBit, []byte{0x01}))
	assert.Equal(t, byte(rcTypeInconsistent), resp[21])
}

func TestItemErrors(t *testing.T) {
	s, _ := startPLC(t, nil)
	conn := dial(t, s)
	handshake(t, conn)

	resp := roundTrip(t, conn, readRequest(2,
		anyPointer(tsByte, 1, 9, 0, 0),
		anyPointer(tsByte, 4, 1, 5, 0),
		anyPointer(tsByte, 1, 1, 0, 0),
	))
	require.Equal(t, byte(3), resp[20])
	data := resp[21:]
	assert.Equal(t, byte(rcObjectNotExist), data[0])
	assert.Equal(t, byte(rcAddressOutOfRange), data[4])
	assert.Equal(t, []byte{rcSuccess, dataTsByte, 0x00, 0x08, 0x00}, data[8:13])
}

func TestWriteDenied(t *testing.T) {
	s, mem := startPLC(t, []string{"10.0.0.1"})
	conn := dial(t, s)
	handshake(t, conn)

	resp := roundTrip(t, conn, writeRequest(2, anyPointer(tsByte, 1, 1, 0, 0), dataTsByte, []byte{1}))
	assert.Equal(t, byte(rcAccessDenied), resp[21])
	v, _ := mem.Read(1, 0)
	assert.Equal(t, false, v)

	// leitura continua liberada
	resp = roundTrip(t, conn, readRequest(3, anyPointer(tsByte, 1, 1, 0, 0)))
	assert.Equal(t, byte(rcSuccess), resp[21])
}

func TestUnsupportedFunctionKeepsConnection(t *testing.T) {
	s, _ := startPLC(t, nil)
	conn := dial(t, s)
	handshake(t, conn)

	resp := roundTrip(t, conn, jobFrame(5, []byte{0x1A, 0x00}, nil))
	assert.Equal(t, byte(errClassFunction), resp[17])
	assert.Equal(t, byte(errCodeFunction), resp[18])

	resp = roundTrip(t, conn, readRequest(6, anyPointer(tsByte, 1, 1, 0, 0)))
	assert.Equal(t, byte(rcSuccess), resp[21])
}

func TestMalformedTPKTClosesConnection(t *testing.T) {
	s, _ := startPLC(t, nil)
	conn := dial(t, s)

	_, err := conn.Write([]byte{0x04, 0x00, 0x00, 0x07})
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestListenAndServeBindError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := NewServer(Config{Address: l.Addr().String()}, memory.New(), guard.New(Protocol, mustPolicy(t), zerolog.Nop()), zerolog.Nop())
	assert.Error(t, s.ListenAndServe(context.Background()))
}

// flakyListener falha os primeiros accepts como um processo sem descritores livres
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return l.Listener.Accept()
}

func TestAcceptErrorsDoNotStopServer(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l := &flakyListener{Listener: inner}
	l.failures.Store(3)

	s := NewServer(Config{}, memory.New(), guard.New(Protocol, mustPolicy(t), zerolog.Nop()), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, l) }()

	conn, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	cc := roundTrip(t, conn, connRequest())
	assert.Equal(t, byte(cotpConnConf), cc[5])
	assert.Negative(t, l.failures.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("servidor não encerrou")
	}
}

func mustPolicy(t *testing.T) *access.Policy {
	t.Helper()
	p, err := access.NewPolicy(nil, nil)
	require.NoError(t, err)
	return p
}

func TestParseWriteDataPadding(t *testing.T) {
	data := []byte{
		0x00, dataTsByte, 0x00, 0x08, 0xAA, 0x00,
		0x00, dataTsBit, 0x00, 0x01, 0x01,
	}
	values, err := parseWriteData(data, 2)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, []byte{0xAA}, values[0].data)
	assert.Equal(t, []byte{0x01}, values[1].data)

	_, err = parseWriteData(data[:8], 2)
	assert.ErrorIs(t, err, errMalformed)
}
