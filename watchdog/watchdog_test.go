package watchdog

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

// TestFailsafePeriod checks the failsafe tick period is
// max(1, round(failsafeTimeout/2)) seconds.
func TestFailsafePeriod(t *testing.T) {
	cases := []struct {
		timeout uint16
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{4, 2 * time.Second},
		{5, 3 * time.Second}, // math.Round(2.5) rounds away from zero -> 3
		{10, 5 * time.Second},
	}
	for _, c := range cases {
		if got := failsafePeriod(c.timeout); got != c.want {
			t.Errorf("failsafePeriod(%d) = %v, want %v", c.timeout, got, c.want)
		}
	}
}

// newLoopbackBus starts a trivial unix-socket echo-less server so an
// Endpoint can connect and Send succeeds, without a real event bus process.
func newLoopbackBus(t *testing.T) (*eventbus.Endpoint, <-chan string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "bus.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	received := make(chan string, 16)
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
			msgType, _ := raw["type"].(string)
			// The endpoint's identity handshake frame is not a published
			// command.
			if msgType == "identity" {
				continue
			}
			received <- msgType
		}
	}()
	t.Cleanup(func() { ln.Close() })

	ep := eventbus.New("unix", sockPath, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ep.Start(ctx)

	// Give the reconnect loop a moment to dial and complete the identity
	// handshake before the caller starts sending.
	time.Sleep(50 * time.Millisecond)

	return ep, received
}

// TestFailsafeTickPublishesFallbackWhenAliveIsZero checks that
// alive==0 with failsafeCurrent != chargingCurrent publishes
// modbusTcpCurrent=failsafeCurrent and resets ALIVE_REGISTER to 0.
func TestFailsafeTickPublishesFallbackWhenAliveIsZero(t *testing.T) {
	bank := registers.NewBank(testLogger())
	bus, received := newLoopbackBus(t)
	model := state.NewModel()
	w := New(bank, model, bus, testLogger())

	bank.WriteRWU16(registers.FailsafeCurrent, 6)
	bank.WriteRWU16(registers.ChargingCurrent, 16)
	bank.WriteRWU16(registers.AliveRegister, 0)

	w.failsafeTick()

	select {
	case msgType := <-received:
		if msgType != "modbusTcpCurrent" {
			t.Errorf("published type = %q, want modbusTcpCurrent", msgType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failsafe publish")
	}

	if got := bank.ReadHoldingU16(registers.AliveRegister); got != 0 {
		t.Errorf("ALIVE_REGISTER = %d, want reset to 0", got)
	}
}

// TestFailsafeTickSkipsPublishWhenAlive checks the idle branch: a non-zero
// alive register means the client is responsive, so no fallback is
// published, but the alive register is still reset.
func TestFailsafeTickSkipsPublishWhenAlive(t *testing.T) {
	bank := registers.NewBank(testLogger())
	bus, received := newLoopbackBus(t)
	model := state.NewModel()
	w := New(bank, model, bus, testLogger())

	bank.WriteRWU16(registers.FailsafeCurrent, 6)
	bank.WriteRWU16(registers.ChargingCurrent, 16)
	bank.WriteRWU16(registers.AliveRegister, 42)

	w.failsafeTick()

	select {
	case msgType := <-received:
		t.Errorf("unexpected publish %q while alive register is non-zero", msgType)
	case <-time.After(200 * time.Millisecond):
	}

	if got := bank.ReadHoldingU16(registers.AliveRegister); got != 0 {
		t.Errorf("ALIVE_REGISTER = %d, want reset to 0", got)
	}
}

// TestSessionDerivationScenario checks that a session started 30s ago
// with initialEnergy=1000 and per-phase active energy summing to 1500
// derives SESSION_DURATION=30, SESSION_ENERGY=500.
func TestSessionDerivationScenario(t *testing.T) {
	bank := registers.NewBank(testLogger())
	model := state.NewModel()

	now := time.Now()
	model.Session.SetFromNotification(now.Add(-30*time.Second).Unix(), nil, 1000, 1500, state.SessionStarted)
	model.Point.SetActiveEnergyWh(1, 600)
	model.Point.SetActiveEnergyWh(2, 500)
	model.Point.SetActiveEnergyWh(3, 400)

	registers.ApplySessionDerived(bank, model.Session.Snapshot(), model.Point.TotalActiveEnergyWh(), now)

	if got := bank.ReadInputU32(registers.SessionDuration); got != 30 {
		t.Errorf("SESSION_DURATION = %d, want 30", got)
	}
	if got := bank.ReadInputU32(registers.SessionEnergy); got != 500 {
		t.Errorf("SESSION_ENERGY = %d, want 500", got)
	}
}
