//go:build linux

package scandetect

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// rawSource lê segmentos TCP de um socket IP bruto (requer root ou CAP_NET_RAW)
type rawSource struct {
	conn net.PacketConn
	raw  *ipv4.RawConn
	buf  []byte
}

// OpenRaw abre o socket bruto ip4:tcp no endereço local dado ("0.0.0.0" para todos)
func OpenRaw(addr string) (Source, error) {
	if addr == "" {
		addr = "0.0.0.0"
	}
	conn, err := net.ListenPacket("ip4:tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir socket bruto em %s: %w", addr, err)
	}
	raw, err := ipv4.NewRawConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("erro ao preparar socket bruto: %w", err)
	}
	return &rawSource{conn: conn, raw: raw, buf: make([]byte, 65535)}, nil
}

func (s *rawSource) ReadPacket() (Packet, error) {
	h, payload, _, err := s.raw.ReadFrom(s.buf)
	if err != nil {
		return Packet{}, err
	}
	return parseTCP(h.Src.String(), payload)
}

func (s *rawSource) Close() error {
	return s.raw.Close()
}
