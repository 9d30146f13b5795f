package plc

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/robinson/gos7"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// dbAccessor é a parte do gos7.Client usada aqui
type dbAccessor interface {
	AGReadDB(dbNumber int, start int, size int, buffer []byte) error
	AGWriteDB(dbNumber int, start int, size int, buffer []byte) error
}

// S7Client acessa os DBs do alvo via gos7; cada bool ocupa o bit 0 do seu byte
type S7Client struct {
	cfg TargetConfig

	mu      sync.Mutex
	db      dbAccessor
	closer  func() error
	connect func() (dbAccessor, func() error, error)
}

// NewS7Client cria o cliente sem conectar
func NewS7Client(cfg TargetConfig) *S7Client {
	c := &S7Client{cfg: cfg}
	c.connect = c.dial
	return c
}

func (c *S7Client) dial() (dbAccessor, func() error, error) {
	address := c.cfg.IP
	if c.cfg.Port != 0 && c.cfg.Port != 102 {
		address = net.JoinHostPort(c.cfg.IP, strconv.Itoa(c.cfg.Port))
	}
	handler := gos7.NewTCPClientHandler(address, c.cfg.Rack, c.cfg.Slot)
	handler.Timeout = c.cfg.Timeout

	if err := handler.Connect(); err != nil {
		return nil, nil, err
	}
	return gos7.NewClient(handler), handler.Close, nil
}

// Connect abre a conexão ISO-on-TCP com o alvo
func (c *S7Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	db, closer, err := c.connect()
	if err != nil {
		return fmt.Errorf("falha ao conectar ao PLC %s: %v: %w", c.cfg.IP, err, ErrConnectionLost)
	}
	c.db, c.closer = db, closer
	return nil
}

// WriteBool grava o bit 0 do byte addr.Offset do DB addr.Block preservando os demais bits
func (c *S7Client) WriteBool(addr memory.Address, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrConnectionLost
	}

	buf := make([]byte, 1)
	if err := c.db.AGReadDB(addr.Block, addr.Offset, 1, buf); err != nil {
		return fmt.Errorf("erro ao ler byte atual de DB%d.%d: %v: %w", addr.Block, addr.Offset, err, ErrConnectionLost)
	}
	if value {
		buf[0] |= 0x01
	} else {
		buf[0] &= 0xFE
	}
	if err := c.db.AGWriteDB(addr.Block, addr.Offset, 1, buf); err != nil {
		return fmt.Errorf("erro ao gravar DB%d.%d: %v: %w", addr.Block, addr.Offset, err, ErrConnectionLost)
	}
	return nil
}

// ReadBools lê cada DB envolvido em uma única requisição
func (c *S7Client) ReadBools(addrs []memory.Address) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrConnectionLost
	}

	groups := groupReads(addrs)
	values := make(map[int][]bool, len(groups))
	for _, g := range groups {
		buf := make([]byte, g.count)
		if err := c.db.AGReadDB(g.block, g.start, g.count, buf); err != nil {
			return nil, fmt.Errorf("erro ao ler DB%d.%d (%d bytes): %v: %w", g.block, g.start, g.count, err, ErrConnectionLost)
		}
		bits := make([]bool, g.count)
		for i, b := range buf {
			bits[i] = b&0x01 == 0x01
		}
		values[g.block] = bits
	}
	return pick(addrs, groups, values), nil
}

// Close fecha a conexão com o PLC
func (c *S7Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *S7Client) closeLocked() error {
	var err error
	if c.closer != nil {
		err = c.closer()
	}
	c.db, c.closer = nil, nil
	return err
}
