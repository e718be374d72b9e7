package ingest

import (
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

func newTestRouter() (*Router, *registers.Bank, *state.Model) {
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	bank := registers.NewBank(logger)
	model := state.NewModel()
	return New(bank, model, nil, logger), bank, model
}

func raw(t *testing.T, msgType string, data any) eventbus.RawMessage {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return eventbus.RawMessage{Type: msgType, Data: payload}
}

func TestStatusNotificationUpdatesPointAndRegisters(t *testing.T) {
	r, bank, model := newTestRouter()

	r.dispatch(raw(t, "StatusNotification", map[string]any{
		"status":          "Charging",
		"vendorErrorCode": 7,
	}))

	point := model.Point.Snapshot()
	if point.Status != state.Charging {
		t.Errorf("point.Status = %v, want Charging", point.Status)
	}
	if point.VendorErrorCode != 7 {
		t.Errorf("point.VendorErrorCode = %d, want 7", point.VendorErrorCode)
	}
	if got := bank.ReadInputU16(registers.ChargepointState); got != uint16(state.Charging) {
		t.Errorf("CHARGEPOINT_STATE = %d, want %d", got, uint16(state.Charging))
	}
	if got := bank.ReadInputU16(registers.ChargingState); got != 1 {
		t.Errorf("CHARGING_STATE = %d, want 1", got)
	}
}

func TestStatusNotificationUnknownStatusDropped(t *testing.T) {
	r, _, model := newTestRouter()
	before := model.Point.Snapshot()

	r.dispatch(raw(t, "StatusNotification", map[string]any{"status": "NotARealStatus"}))

	after := model.Point.Snapshot()
	if after.Status != before.Status {
		t.Errorf("unknown status should leave point.Status unchanged, got %v", after.Status)
	}
}

func TestUnknownMessageTypeDroppedSilently(t *testing.T) {
	r, bank, model := newTestRouter()
	before := bank.ReadInputRange(0, registers.BankSize)
	beforeStation := model.Station.Snapshot()

	r.dispatch(eventbus.RawMessage{Type: "totallyUnknownEvent", Data: json.RawMessage(`{"foo":1}`)})

	after := bank.ReadInputRange(0, registers.BankSize)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("unknown message type mutated input[%d]: %d -> %d", i, before[i], after[i])
		}
	}
	if model.Station.Snapshot() != beforeStation {
		t.Errorf("unknown message type mutated station state")
	}
}

func TestMeterValuesUpdatesPerPhaseRegisters(t *testing.T) {
	r, bank, model := newTestRouter()

	r.dispatch(raw(t, "MeterValues", map[string]any{
		"meterValue": []map[string]any{
			{
				"sampledValue": []map[string]any{
					{"measurand": "Current.Import", "phase": "L1", "value": "16"},
					{"measurand": "Voltage", "phase": "L1", "value": "230000"},
					{"measurand": "Power.Active.Import", "phase": "L1", "value": "3680"},
					{"measurand": "Energy.Active.Import.Register", "phase": "L1", "value": "1000"},
					{"measurand": "Some.Unknown.Measurand", "phase": "L2", "value": "99"},
				},
			},
		},
	}))

	if got := bank.ReadInputU16(registers.CurrentL1); got != 16 {
		t.Errorf("CURRENT_L1 = %d, want 16", got)
	}
	if got := bank.ReadInputU16(registers.VoltageL1); got != 230 {
		t.Errorf("VOLTAGE_L1 = %d, want 230", got)
	}
	pt := model.Point.Snapshot()
	if pt.Phases[0].ActiveEnergyWh != 1000 {
		t.Errorf("phase 1 active energy = %d, want 1000", pt.Phases[0].ActiveEnergyWh)
	}
}

// TestMeterValuesEnergyWithoutPhaseUpdatesMeterReading covers spec scenario
// 3's Energy.Active.Import.Register sample, which normally carries no phase
// field and must still register as cumulative meter energy.
func TestMeterValuesEnergyWithoutPhaseUpdatesMeterReading(t *testing.T) {
	r, bank, _ := newTestRouter()

	r.dispatch(raw(t, "MeterValues", map[string]any{
		"meterValue": []map[string]any{
			{
				"sampledValue": []map[string]any{
					{"measurand": "Voltage", "phase": "L1", "value": "230000"},
					{"measurand": "Current.Import", "phase": "L1", "value": "16"},
					{"measurand": "Power.Active.Import", "phase": "L1", "value": "3680"},
					{"measurand": "Energy.Active.Import.Register", "value": "1234567"},
				},
			},
		},
	}))

	if got := bank.ReadInputU16(registers.VoltageL1); got != 230 {
		t.Errorf("VOLTAGE_L1 = %d, want 230", got)
	}
	if got := bank.ReadInputU32(registers.MeterReading); got != 123 {
		t.Errorf("METER_READING = %d, want 123", got)
	}
}

func TestPilotAndProximityStateDeriveCableState(t *testing.T) {
	r, bank, _ := newTestRouter()

	r.dispatch(raw(t, "proximityState", map[string]any{"value": 0}))
	r.dispatch(raw(t, "pilotState", map[string]any{"value": 2}))

	if got := bank.ReadInputU16(registers.CableState); got != 2 {
		t.Errorf("CABLE_STATE = %d, want 2", got)
	}

	r.dispatch(raw(t, "proximityState", map[string]any{"value": 1}))
	if got := bank.ReadInputU16(registers.CableState); got != 0 {
		t.Errorf("CABLE_STATE after proximityState=1 = %d, want 0 (no cable)", got)
	}
}

func TestChargeSessionStatusNullFinishTimeMeansOngoing(t *testing.T) {
	r, bank, model := newTestRouter()

	r.dispatch(raw(t, "ChargeSessionStatus", map[string]any{
		"startTime":     1000,
		"finishTime":    nil,
		"initialEnergy": 500,
		"lastEnergy":    500,
		"status":        "Started",
	}))

	session := model.Session.Snapshot()
	if session.StopTime != 0 {
		t.Errorf("session.StopTime = %d, want 0 for an ongoing session", session.StopTime)
	}
	if got := bank.ReadInputU32(registers.SessionEndTime); got != 0 {
		t.Errorf("SESSION_END_TIME = %d, want 0", got)
	}
}

func TestMinMaxCurrentUpdateRegisters(t *testing.T) {
	r, bank, model := newTestRouter()

	r.dispatch(raw(t, "minCurrent", map[string]any{"value": 6}))
	r.dispatch(raw(t, "maximumCurrent", map[string]any{"value": 16}))

	if got := bank.ReadInputU16(registers.EVSEMinCurrent); got != 6 {
		t.Errorf("EVSE_MIN_CURRENT = %d, want 6", got)
	}
	if got := bank.ReadInputU16(registers.EVSEMaxCurrent); got != 16 {
		t.Errorf("EVSE_MAX_CURRENT = %d, want 16", got)
	}
	if got := bank.ReadInputU32(registers.ChargepointPower); got != 230*16 {
		t.Errorf("CHARGEPOINT_POWER = %d, want %d", got, 230*16)
	}
	if model.Point.Snapshot().MaxCurrent != 16 {
		t.Errorf("point.MaxCurrent not updated")
	}
}

func TestOcppUpdateReloadsChargePointID(t *testing.T) {
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	bank := registers.NewBank(logger)
	model := state.NewModel()
	r := New(bank, model, func() (string, error) { return "CP-42", nil }, logger)

	r.dispatch(eventbus.RawMessage{Type: "ocppUpdate", Data: json.RawMessage(`{}`)})

	if model.Station.Snapshot().ChargePointID != "CP-42" {
		t.Errorf("ChargePointID not reloaded via ocppUpdate")
	}
}
