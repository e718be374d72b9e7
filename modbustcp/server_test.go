package modbustcp

import (
	"encoding/json"
	"log"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

func newLoopbackBus(t *testing.T) (*eventbus.Endpoint, <-chan map[string]any) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "bus.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	received := make(chan map[string]any, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := json.NewDecoder(conn)
		for {
			var raw map[string]any
			if err := dec.Decode(&raw); err != nil {
				return
			}
			// The endpoint's identity handshake frame is not a published
			// command.
			if raw["type"] == "identity" {
				continue
			}
			received <- raw
		}
	}()
	t.Cleanup(func() { ln.Close() })

	ep := eventbus.New("unix", sockPath, testLogger())
	ep.Start(t.Context())
	time.Sleep(50 * time.Millisecond)

	return ep, received
}

// TestClientWriteToFailsafeCurrentPublishesCommand checks that a client
// write to FAILSAFE_CURRENT publishes
// {"type":"failsafeCurrent","data":{"value":V}} on the event bus.
func TestClientWriteToFailsafeCurrentPublishesCommand(t *testing.T) {
	bank := registers.NewBank(testLogger())
	bus, received := newLoopbackBus(t)
	s := &Server{bank: bank, bus: bus, logger: testLogger()}

	s.publishIfControlAddress(registers.FailsafeCurrent, 10, "127.0.0.1:54321")

	select {
	case msg := <-received:
		if msg["type"] != "failsafeCurrent" {
			t.Errorf("published type = %v, want failsafeCurrent", msg["type"])
		}
		data, _ := msg["data"].(map[string]any)
		if data["value"] != float64(10) {
			t.Errorf("published value = %v, want 10", data["value"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

// TestNonControlAddressDoesNotPublish checks an ordinary holding-register
// write outside the three control addresses is not republished.
func TestNonControlAddressDoesNotPublish(t *testing.T) {
	bank := registers.NewBank(testLogger())
	bus, received := newLoopbackBus(t)
	s := &Server{bank: bank, bus: bus, logger: testLogger()}

	s.publishIfControlAddress(9999, 1, "127.0.0.1:54321")

	select {
	case msg := <-received:
		t.Errorf("unexpected publish for non-control address: %v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestHandleHoldingRegistersDetectsChargingCurrentWrite exercises the
// HandleHoldingRegisters path the Modbus library calls on a 0x06/0x10/0x17
// write, checking the write lands in the bank and republishes.
func TestHandleHoldingRegistersDetectsChargingCurrentWrite(t *testing.T) {
	bank := registers.NewBank(testLogger())
	bus, received := newLoopbackBus(t)
	s := &Server{bank: bank, bus: bus, logger: testLogger()}

	_, err := s.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId:   UnitID,
		Addr:     registers.ChargingCurrent,
		Quantity: 1,
		IsWrite:  true,
		Args:     []uint16{16},
	})
	if err != nil {
		t.Fatalf("HandleHoldingRegisters: %v", err)
	}

	if got := bank.ReadHoldingU16(registers.ChargingCurrent); got != 16 {
		t.Errorf("CHARGING_CURRENT = %d, want 16", got)
	}

	select {
	case msg := <-received:
		if msg["type"] != "modbusTcpCurrent" {
			t.Errorf("published type = %v, want modbusTcpCurrent", msg["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
}
