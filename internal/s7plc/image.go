package s7plc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// Cada DB é visto pelo cliente como uma imagem de bytes: os offsets declarados
// no memory.Map ocupam kind.Size() bytes a partir do offset, em big-endian;
// bool ocupa o bit 0 do seu byte. Bytes fora de qualquer célula são lidos como zero.

// itemError carrega o código de retorno S7 de um item
type itemError struct {
	rc  byte
	msg string
}

func (e *itemError) Error() string { return e.msg }

var (
	errOutOfRange   = &itemError{rc: rcAddressOutOfRange, msg: "endereço fora da imagem do DB"}
	errPartialCell  = &itemError{rc: rcTypeInconsistent, msg: "escrita cobre parte de uma variável"}
	errNotSupported = &itemError{rc: rcTypeNotSupported, msg: "tamanho de transporte não suportado"}
	errAreaNotDB    = &itemError{rc: rcObjectNotExist, msg: "somente a área DB é emulada"}
)

// returnCode traduz um erro em código de retorno de item
func returnCode(err error) byte {
	var ie *itemError
	switch {
	case err == nil:
		return rcSuccess
	case errors.As(err, &ie):
		return ie.rc
	case errors.Is(err, access.ErrAccessDenied):
		return rcAccessDenied
	case errors.Is(err, memory.ErrUnknownAddress):
		return rcObjectNotExist
	case errors.Is(err, memory.ErrTypeMismatch):
		return rcTypeInconsistent
	}
	return rcObjectNotExist
}

type dbCell struct {
	offset int
	kind   memory.Kind
}

func dbLayout(tx *memory.Tx, db int) ([]dbCell, int, error) {
	offsets, err := tx.Offsets(db)
	if err != nil {
		return nil, 0, err
	}
	cells := make([]dbCell, 0, len(offsets))
	size := 0
	for _, off := range offsets {
		kind, err := tx.Kind(db, off)
		if err != nil {
			return nil, 0, err
		}
		cells = append(cells, dbCell{offset: off, kind: kind})
		if end := off + kind.Size(); end > size {
			size = end
		}
	}
	return cells, size, nil
}

// readImage lê size bytes do DB a partir de start
func readImage(tx *memory.Tx, db, start, size int) ([]byte, error) {
	cells, total, err := dbLayout(tx, db)
	if err != nil {
		return nil, err
	}
	if start < 0 || size <= 0 || start+size > total {
		return nil, errOutOfRange
	}

	image := make([]byte, total)
	for _, c := range cells {
		v, err := tx.Read(db, c.offset)
		if err != nil {
			return nil, err
		}
		encodeValue(image[c.offset:c.offset+c.kind.Size()], v)
	}
	return image[start : start+size], nil
}

// writeImage grava data no DB a partir de start; toda célula tocada precisa
// ser coberta por inteiro
func writeImage(tx *memory.Tx, db, start int, data []byte) error {
	cells, total, err := dbLayout(tx, db)
	if err != nil {
		return err
	}
	end := start + len(data)
	if start < 0 || len(data) == 0 || end > total {
		return errOutOfRange
	}

	for _, c := range cells {
		cEnd := c.offset + c.kind.Size()
		if cEnd <= start || c.offset >= end {
			continue
		}
		if c.offset < start || cEnd > end {
			return errPartialCell
		}
		v := decodeValue(c.kind, data[c.offset-start:cEnd-start])
		if err := tx.Write(db, c.offset, v); err != nil {
			return err
		}
	}
	return nil
}

// readBit lê um único bit da imagem
func readBit(tx *memory.Tx, db, offset, bit int) ([]byte, error) {
	b, err := readImage(tx, db, offset, 1)
	if err != nil {
		return nil, err
	}
	return []byte{(b[0] >> uint(bit)) & 0x01}, nil
}

// writeBit grava um bit; só o bit 0 de uma célula bool é endereçável
func writeBit(tx *memory.Tx, db, offset, bit int, data []byte) error {
	if len(data) != 1 {
		return errOutOfRange
	}
	kind, err := tx.Kind(db, offset)
	if err != nil {
		return err
	}
	if kind != memory.Bool || bit != 0 {
		return errPartialCell
	}
	return tx.Write(db, offset, data[0]&0x01 != 0)
}

func encodeValue(dst []byte, v interface{}) {
	switch x := v.(type) {
	case bool:
		if x {
			dst[0] = 0x01
		}
	case int16:
		binary.BigEndian.PutUint16(dst, uint16(x))
	case float32:
		binary.BigEndian.PutUint32(dst, math.Float32bits(x))
	}
}

func decodeValue(kind memory.Kind, src []byte) interface{} {
	switch kind {
	case memory.Int:
		return int16(binary.BigEndian.Uint16(src))
	case memory.Real:
		return math.Float32frombits(binary.BigEndian.Uint32(src))
	}
	return src[0]&0x01 != 0
}

func describe(it item) string {
	if it.ts == tsBit {
		return fmt.Sprintf("DB%d.DBX%d.%d", it.db, it.offset, it.bit)
	}
	return fmt.Sprintf("DB%d.DBB%d", it.db, it.offset)
}
