package modbus

// Holding register bank for controller emulation.
//
// The greenhouse controller exposes one flat bank of 16-bit holding
// registers (word addresses 0-84 on the observed device), served with
// FC 3/6/16/22. Coils, discrete inputs and input registers are not used.

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// DefaultRegisterCount covers the controller's word map with headroom.
const DefaultRegisterCount = 128

// DataStore holds the holding register bank.
type DataStore struct {
	mu        sync.RWMutex
	registers []uint16 // 0-based word addresses
}

// NewDataStore creates a zeroed bank of count registers. A non-positive
// count selects DefaultRegisterCount.
func NewDataStore(count int) *DataStore {
	if count <= 0 {
		count = DefaultRegisterCount
	}
	return &DataStore{registers: make([]uint16, count)}
}

// Len returns the number of registers in the bank.
func (ds *DataStore) Len() int {
	return len(ds.registers)
}

// SetHoldingRegister sets a single holding register value.
func (ds *DataStore) SetHoldingRegister(addr uint16, value uint16) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if int(addr) >= len(ds.registers) {
		return fmt.Errorf("holding register address %d out of range (0-%d)", addr, len(ds.registers)-1)
	}
	ds.registers[addr] = value
	return nil
}

// GetHoldingRegister reads a single holding register.
func (ds *DataStore) GetHoldingRegister(addr uint16) (uint16, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if int(addr) >= len(ds.registers) {
		return 0, fmt.Errorf("holding register address %d out of range", addr)
	}
	return ds.registers[addr], nil
}

// Load applies a set of address/value pairs atomically. Nothing is written
// if any address is out of range.
func (ds *DataStore) Load(values map[uint16]uint16) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for addr := range values {
		if int(addr) >= len(ds.registers) {
			return fmt.Errorf("holding register address %d out of range (0-%d)", addr, len(ds.registers)-1)
		}
	}
	for addr, v := range values {
		ds.registers[addr] = v
	}
	return nil
}

// Snapshot returns a copy of the whole bank.
func (ds *DataStore) Snapshot() []uint16 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]uint16, len(ds.registers))
	copy(out, ds.registers)
	return out
}

// --- Modbus PDU handlers ---

// HandleRequest processes a Modbus request PDU and returns the response,
// which is an exception response for anything the bank cannot serve.
func (ds *DataStore) HandleRequest(req Request) Response {
	switch req.Function {
	case FcReadHoldingRegisters:
		return ds.handleReadHoldingRegisters(req)
	case FcWriteSingleRegister:
		return ds.handleWriteSingleRegister(req)
	case FcWriteMultipleRegisters:
		return ds.handleWriteMultipleRegisters(req)
	case FcMaskWriteRegister:
		return ds.handleMaskWriteRegister(req)
	default:
		return exceptionResponse(req, ExceptionIllegalFunction)
	}
}

func (ds *DataStore) handleReadHoldingRegisters(req Request) Response {
	if len(req.Data) < 4 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	startAddr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || quantity > MaxReadQuantity {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	end := int(startAddr) + int(quantity)
	if end > len(ds.registers) {
		return exceptionResponse(req, ExceptionIllegalDataAddress)
	}

	byteCount := quantity * 2
	data := make([]byte, 1+byteCount)
	data[0] = byte(byteCount)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(data[1+i*2:], ds.registers[int(startAddr)+int(i)])
	}
	return okResponse(req, data)
}

func (ds *DataStore) handleWriteSingleRegister(req Request) Response {
	if len(req.Data) < 4 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Data[0:2])
	val := binary.BigEndian.Uint16(req.Data[2:4])

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if int(addr) >= len(ds.registers) {
		return exceptionResponse(req, ExceptionIllegalDataAddress)
	}
	ds.registers[addr] = val

	// Echo request data as response
	return okResponse(req, cloneBytes(req.Data[:4]))
}

func (ds *DataStore) handleWriteMultipleRegisters(req Request) Response {
	if len(req.Data) < 5 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	startAddr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])
	if quantity < 1 || quantity > MaxWriteQuantity {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	if byteCount != int(quantity)*2 || len(req.Data) < 5+byteCount {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	end := int(startAddr) + int(quantity)
	if end > len(ds.registers) {
		return exceptionResponse(req, ExceptionIllegalDataAddress)
	}

	for i := uint16(0); i < quantity; i++ {
		ds.registers[int(startAddr)+int(i)] = binary.BigEndian.Uint16(req.Data[5+i*2:])
	}

	// Response echoes start address and quantity
	return okResponse(req, encodeAddrQty(startAddr, quantity))
}

func (ds *DataStore) handleMaskWriteRegister(req Request) Response {
	if len(req.Data) < 6 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Data[0:2])
	andMask := binary.BigEndian.Uint16(req.Data[2:4])
	orMask := binary.BigEndian.Uint16(req.Data[4:6])

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if int(addr) >= len(ds.registers) {
		return exceptionResponse(req, ExceptionIllegalDataAddress)
	}

	// Result = (Current AND And_Mask) OR (Or_Mask AND NOT And_Mask)
	current := ds.registers[addr]
	ds.registers[addr] = (current & andMask) | (orMask & ^andMask)

	return okResponse(req, cloneBytes(req.Data[:6]))
}

// --- helpers ---

func okResponse(req Request, data []byte) Response {
	return Response{
		TransactionID: req.TransactionID,
		UnitID:        req.UnitID,
		Function:      req.Function,
		Data:          data,
	}
}

func exceptionResponse(req Request, exc ExceptionCode) Response {
	return Response{
		TransactionID: req.TransactionID,
		UnitID:        req.UnitID,
		Function:      req.Function | 0x80,
		Data:          []byte{byte(exc)},
	}
}
