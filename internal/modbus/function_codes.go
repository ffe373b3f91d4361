package modbus

// Holding register function codes served by the simulator.

const (
	FcReadHoldingRegisters   FunctionCode = 0x03 // Read 1-125 holding registers
	FcWriteSingleRegister    FunctionCode = 0x06 // Write a single holding register
	FcWriteMultipleRegisters FunctionCode = 0x10 // Write 1-123 holding registers
	FcMaskWriteRegister      FunctionCode = 0x16 // Mask write to a holding register
)

// Register quantity limits per request.
const (
	MaxReadQuantity  = 125
	MaxWriteQuantity = 123
)

// String returns a human-readable name for the function code.
func (fc FunctionCode) String() string {
	switch fc &^ 0x80 {
	case FcReadHoldingRegisters:
		return "Read_Holding_Registers"
	case FcWriteSingleRegister:
		return "Write_Single_Register"
	case FcWriteMultipleRegisters:
		return "Write_Multiple_Registers"
	case FcMaskWriteRegister:
		return "Mask_Write_Register"
	default:
		return "Unknown"
	}
}

// IsWrite returns true for function codes that modify the bank.
func (fc FunctionCode) IsWrite() bool {
	switch fc {
	case FcWriteSingleRegister, FcWriteMultipleRegisters, FcMaskWriteRegister:
		return true
	default:
		return false
	}
}

// IsKnownFunction returns true for function codes the bank serves.
func IsKnownFunction(fc FunctionCode) bool {
	switch fc {
	case FcReadHoldingRegisters, FcWriteSingleRegister,
		FcWriteMultipleRegisters, FcMaskWriteRegister:
		return true
	default:
		return false
	}
}
