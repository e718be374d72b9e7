package registers

// Fixed Modbus address map. Widths are in 16-bit registers.
//
// String fields reserve a fixed span of registers; WriteROString/
// WriteRWString leave any registers beyond the encoded string's length
// untouched, per spec's "zero-padded up to the field's reserved span"
// invariant (the bank itself starts zeroed, so untouched means unwritten-to,
// not actively re-zeroed on every call).
const (
	SerialNumber     = 100
	SerialNumberSpan = 30

	ChargePointID     = 130
	ChargePointIDSpan = 60

	Brand     = 190
	BrandSpan = 20

	Model     = 210
	ModelSpan = 20

	FirmwareVersion     = 230
	FirmwareVersionSpan = 60

	Date = 290 // u32, decimal YYMMDD
	Time = 294 // u32, decimal HHMMSS

	ChargepointPower = 400 // u32, watts
	NumberOfPhases   = 404 // u16

	ChargepointState = 1000 // u16
	ChargingState    = 1001 // u16, 1 iff ChargepointState == Charging
	EquipmentState   = 1002 // u16
	CableState       = 1004 // u16
	EVSEFaultCode    = 1006 // u16

	CurrentL1 = 1008
	CurrentL2 = 1010
	CurrentL3 = 1012

	VoltageL1 = 1014
	VoltageL2 = 1016
	VoltageL3 = 1018

	ActivePowerTotal = 1020 // u32, overlaps span of ActivePowerL1 by design
	ActivePowerL1    = 1024 // u32
	ActivePowerL2    = 1028 // u32
	ActivePowerL3    = 1032 // u32

	MeterReading = 1036 // u32

	SessionMaxCurrent = 1100
	EVSEMinCurrent    = 1102
	EVSEMaxCurrent    = 1104
	CableMaxCurrent   = 1106

	SessionEnergy    = 1502 // u32
	SessionStartTime = 1504 // u32, decimal HHMMSS
	SessionDuration  = 1508 // u32, seconds
	SessionEndTime   = 1512 // u32, decimal HHMMSS or 0

	// Holding (read-write) registers.
	FailsafeCurrent = 2000
	FailsafeTimeout = 2002
	ChargingCurrent = 5004
	AliveRegister   = 6000

	// BankSize is large enough to cover both the input bank's highest
	// address (SessionEndTime+1) and the holding bank's highest address
	// (AliveRegister); a single size serves both banks identically.
	BankSize = 7515
)

// ControlAddresses are the three holding registers whose client writes are
// republished onto the event bus.
var ControlAddresses = [3]uint16{FailsafeCurrent, FailsafeTimeout, ChargingCurrent}
