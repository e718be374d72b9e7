package registers

import (
	"log"
	"os"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

// TestWriteROU32RoundTrip exercises the u32 write/read round trip every
// derived 32-bit register (ACTIVE_POWER_*, SESSION_*, METER_READING, DATE,
// TIME) depends on: after WriteROU32(a, v), input[a]<<16|input[a+1] == v.
func TestWriteROU32RoundTrip(t *testing.T) {
	bank := NewBank(testLogger())

	cases := []uint32{0, 1, 42, 0xFFFF, 0x10000, 0xFFFFFFFF, 123456789}
	for _, v := range cases {
		bank.WriteROU32(MeterReading, v)
		hi := uint32(bank.ReadInputU16(MeterReading))
		lo := uint32(bank.ReadInputU16(MeterReading + 1))
		got := hi<<16 | lo
		if got != v {
			t.Errorf("WriteROU32(%d): round trip got %d", v, got)
		}
	}
}

func TestWriteRWU32RoundTrip(t *testing.T) {
	bank := NewBank(testLogger())

	bank.WriteRWU32(FailsafeCurrent, 0xABCD1234)
	hi := uint32(bank.ReadHoldingU16(FailsafeCurrent))
	lo := uint32(bank.ReadHoldingU16(FailsafeCurrent + 1))
	if got := hi<<16 | lo; got != 0xABCD1234 {
		t.Errorf("WriteRWU32 round trip got %#x, want %#x", got, uint32(0xABCD1234))
	}
}

// TestWriteChangeDetection checks that a write of the same value reports
// no change, and a write of a different value does.
func TestWriteChangeDetection(t *testing.T) {
	bank := NewBank(testLogger())

	if changed := bank.WriteROU16(ChargepointState, 3); !changed {
		t.Fatalf("first write should report changed")
	}
	if changed := bank.WriteROU16(ChargepointState, 3); changed {
		t.Errorf("repeat write of the same value should report unchanged")
	}
	if changed := bank.WriteROU16(ChargepointState, 4); !changed {
		t.Errorf("write of a different value should report changed")
	}
}

// TestWriteROStringWithinSpan checks the string encoding is one byte per
// register and that registers beyond the written length are left alone.
func TestWriteROStringWithinSpan(t *testing.T) {
	bank := NewBank(testLogger())

	bank.WriteROString(SerialNumber, "ABC", SerialNumberSpan)
	for i, want := range []byte("ABC") {
		if got := bank.ReadInputU16(SerialNumber + uint16(i)); got != uint16(want) {
			t.Errorf("input[%d] = %d, want %d", SerialNumber+uint16(i), got, want)
		}
	}
	if got := bank.ReadInputU16(SerialNumber + 3); got != 0 {
		t.Errorf("input[%d] = %d, want untouched zero", SerialNumber+3, got)
	}
}

// TestWriteROStringTruncatesToSpan checks a string longer than its
// reserved span is truncated rather than overflowing into the next field.
func TestWriteROStringTruncatesToSpan(t *testing.T) {
	bank := NewBank(testLogger())

	long := make([]byte, SerialNumberSpan+5)
	for i := range long {
		long[i] = 'X'
	}
	bank.WriteROString(SerialNumber, string(long), SerialNumberSpan)

	if got := bank.ReadInputU16(ChargePointID); got != 0 {
		t.Errorf("write overflowed past its span into ChargePointID: got %d", got)
	}
}

func TestReadRangeReturnsIndependentCopy(t *testing.T) {
	bank := NewBank(testLogger())
	bank.WriteROU16(ChargepointState, 7)

	snap := bank.ReadInputRange(ChargepointState, 1)
	bank.WriteROU16(ChargepointState, 8)

	if snap[0] != 7 {
		t.Errorf("ReadInputRange did not return an independent copy: got %d after later write", snap[0])
	}
}
