package s7plc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// TPKT / COTP
const (
	tpktVersion  = 0x03
	tpktHeaderSz = 4
	maxFrameSize = 4096

	cotpConnReq  = 0xE0
	cotpConnConf = 0xD0
	cotpDiscReq  = 0x80
	cotpData     = 0xF0
	cotpEOT      = 0x80
)

// Cabeçalho S7
const (
	s7ProtocolID = 0x32

	rosctrJob      = 0x01
	rosctrAckData  = 0x03
	rosctrUserData = 0x07

	jobHeaderSz = 10
	ackHeaderSz = 12

	// posição dos parâmetros em um frame completo (TPKT + COTP DT + cabeçalho)
	jobParamsAt = tpktHeaderSz + 3 + jobHeaderSz
)

// Funções
const (
	fnSetupComm = 0xF0
	fnReadVar   = 0x04
	fnWriteVar  = 0x05
)

// Áreas e tamanhos de transporte dos itens
const (
	areaDB = 0x84

	tsBit   = 0x01
	tsByte  = 0x02
	tsChar  = 0x03
	tsWord  = 0x04
	tsInt   = 0x05
	tsDWord = 0x06
	tsDInt  = 0x07
	tsReal  = 0x08

	// tamanhos de transporte na seção de dados
	dataTsBit   = 0x03
	dataTsByte  = 0x04
	dataTsInt   = 0x05
	dataTsReal  = 0x07
	dataTsOctet = 0x09
)

// Códigos de retorno por item
const (
	rcSuccess           = 0xFF
	rcAccessDenied      = 0x03
	rcAddressOutOfRange = 0x05
	rcTypeNotSupported  = 0x06
	rcTypeInconsistent  = 0x07
	rcObjectNotExist    = 0x0A
)

// Classes de erro do cabeçalho ack_data
const (
	errClassNone     = 0x00
	errClassFunction = 0x84
	errCodeFunction  = 0x04
	errClassHeader   = 0x81
	errCodeHeader    = 0x04
)

var errMalformed = errors.New("frame S7 malformado")

// readFrame lê um frame TPKT completo
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, tpktHeaderSz)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != tpktVersion {
		return nil, fmt.Errorf("versão TPKT %#x: %w", head[0], errMalformed)
	}
	size := int(binary.BigEndian.Uint16(head[2:4]))
	if size < tpktHeaderSz+2 || size > maxFrameSize {
		return nil, fmt.Errorf("tamanho TPKT %d: %w", size, errMalformed)
	}

	frame := make([]byte, size)
	copy(frame, head)
	if _, err := io.ReadFull(r, frame[tpktHeaderSz:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func cotpType(frame []byte) byte {
	return frame[5]
}

// connConfirm responde a um pedido de conexão COTP ecoando os parâmetros
func connConfirm(req []byte) []byte {
	resp := append([]byte(nil), req...)
	resp[5] = cotpConnConf
	if len(resp) >= 10 {
		// dst-ref recebe o src-ref do cliente
		resp[6], resp[7] = req[8], req[9]
		resp[8], resp[9] = 0x00, 0x01
	}
	return resp
}

// job é uma requisição S7 decodificada
type job struct {
	rosctr byte
	pduRef uint16
	params []byte
	data   []byte
}

func parseJob(frame []byte) (job, error) {
	if len(frame) < jobParamsAt {
		return job{}, fmt.Errorf("frame com %d bytes: %w", len(frame), errMalformed)
	}
	if frame[6] != cotpEOT {
		return job{}, fmt.Errorf("PDU fragmentada: %w", errMalformed)
	}
	h := frame[7:]
	if h[0] != s7ProtocolID {
		return job{}, fmt.Errorf("protocol id %#x: %w", h[0], errMalformed)
	}

	j := job{
		rosctr: h[1],
		pduRef: binary.BigEndian.Uint16(h[4:6]),
	}
	paramLen := int(binary.BigEndian.Uint16(h[6:8]))
	dataLen := int(binary.BigEndian.Uint16(h[8:10]))
	if jobParamsAt+paramLen+dataLen > len(frame) {
		return j, fmt.Errorf("tamanhos declarados excedem o frame: %w", errMalformed)
	}
	j.params = frame[jobParamsAt : jobParamsAt+paramLen]
	j.data = frame[jobParamsAt+paramLen : jobParamsAt+paramLen+dataLen]
	if len(j.params) == 0 && j.rosctr == rosctrJob {
		return j, fmt.Errorf("job sem parâmetros: %w", errMalformed)
	}
	return j, nil
}

// ackData monta um frame de resposta completo
func ackData(pduRef uint16, errClass, errCode byte, params, data []byte) []byte {
	size := tpktHeaderSz + 3 + ackHeaderSz + len(params) + len(data)
	b := make([]byte, 0, size)

	b = append(b, tpktVersion, 0x00, byte(size>>8), byte(size))
	b = append(b, 0x02, cotpData, cotpEOT)
	b = append(b, s7ProtocolID, rosctrAckData, 0x00, 0x00)
	b = binary.BigEndian.AppendUint16(b, pduRef)
	b = binary.BigEndian.AppendUint16(b, uint16(len(params)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	b = append(b, errClass, errCode)
	b = append(b, params...)
	b = append(b, data...)
	return b
}

// item é um endereço de variável S7 (formato "any pointer")
type item struct {
	ts     byte
	count  int
	db     int
	area   byte
	offset int // byte
	bit    int
}

// byteLen é o número de bytes que o item cobre na imagem do DB
func (it item) byteLen() (int, bool) {
	size, ok := elementSize(it.ts)
	if !ok {
		return 0, false
	}
	if it.ts == tsBit {
		return 1, true
	}
	return it.count * size, true
}

func elementSize(ts byte) (int, bool) {
	switch ts {
	case tsBit, tsByte, tsChar:
		return 1, true
	case tsWord, tsInt:
		return 2, true
	case tsDWord, tsDInt, tsReal:
		return 4, true
	}
	return 0, false
}

// parseItems decodifica os itens de uma requisição read/write var
func parseItems(params []byte) ([]item, error) {
	if len(params) < 2 {
		return nil, errMalformed
	}
	n := int(params[1])
	if n == 0 || len(params) < 2+12*n {
		return nil, fmt.Errorf("%d itens em %d bytes de parâmetros: %w", n, len(params), errMalformed)
	}

	items := make([]item, n)
	for i := 0; i < n; i++ {
		p := params[2+12*i:]
		if p[0] != 0x12 || p[1] != 0x0A || p[2] != 0x10 {
			return nil, fmt.Errorf("item %d com especificação desconhecida: %w", i, errMalformed)
		}
		addr := int(p[9])<<16 | int(p[10])<<8 | int(p[11])
		items[i] = item{
			ts:     p[3],
			count:  int(binary.BigEndian.Uint16(p[4:6])),
			db:     int(binary.BigEndian.Uint16(p[6:8])),
			area:   p[8],
			offset: addr >> 3,
			bit:    addr & 0x07,
		}
	}
	return items, nil
}

// writeValue é o dado de um item de escrita
type writeValue struct {
	rc   byte
	data []byte
}

// parseWriteData separa os blocos de dados de uma requisição write var
func parseWriteData(data []byte, n int) ([]writeValue, error) {
	values := make([]writeValue, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("dados do item %d ausentes: %w", i, errMalformed)
		}
		ts := data[pos+1]
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		rc := byte(rcSuccess)
		switch ts {
		case dataTsBit:
			length = (length + 7) / 8
		case dataTsByte, dataTsInt:
			length /= 8
		case dataTsReal, dataTsOctet:
		default:
			rc = rcTypeNotSupported
		}
		pos += 4
		if pos+length > len(data) {
			return nil, fmt.Errorf("dados do item %d truncados: %w", i, errMalformed)
		}

		v := writeValue{rc: rc}
		if rc == rcSuccess {
			v.data = data[pos : pos+length]
		}
		values = append(values, v)

		pos += length
		if length%2 == 1 && i < n-1 {
			pos++
		}
	}
	return values, nil
}

// appendReadItem acrescenta o resultado de um item de leitura à seção de dados
func appendReadItem(b []byte, rc byte, it item, data []byte, last bool) []byte {
	if rc != rcSuccess {
		b = append(b, rc, 0x00, 0x00, 0x00)
		return b
	}
	ts := byte(dataTsByte)
	bits := len(data) * 8
	if it.ts == tsBit {
		ts = dataTsBit
		bits = 1
	}
	b = append(b, rcSuccess, ts)
	b = binary.BigEndian.AppendUint16(b, uint16(bits))
	b = append(b, data...)
	if len(data)%2 == 1 && !last {
		b = append(b, 0x00)
	}
	return b
}
