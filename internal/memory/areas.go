package memory

// Blocos usados pelo PLC Modbus, numerados como as tabelas de dados do protocolo
const (
	Coils            = 0
	DiscreteInputs   = 1
	InputRegisters   = 3
	HoldingRegisters = 4
)
