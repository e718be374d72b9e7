// Package ingest is the event bus consumer: it takes RawMessages off
// the event bus endpoint, dispatches on their type discriminator, mutates
// the state model, and re-derives the affected registers. Apart from the
// boot-time cold-start load, it is the only writer of the state model;
// every other goroutine only reads it through Snapshot.
package ingest

import (
	"encoding/json"
	"log"
	"time"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

// ChargePointIDReloader re-reads the configured charge point id from
// persistence, for the ocppUpdate event. Wired to coldstart's webconfig.db
// reader at startup; nil disables the reload (chargePointId is left as-is).
type ChargePointIDReloader func() (string, error)

// Router owns the event-type dispatch table.
type Router struct {
	bank    *registers.Bank
	model   *state.Model
	logger  *log.Logger
	reloadChargePointID ChargePointIDReloader
}

// New constructs a Router over model/bank. reloadChargePointID may be nil.
func New(bank *registers.Bank, model *state.Model, reloadChargePointID ChargePointIDReloader, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{bank: bank, model: model, logger: logger, reloadChargePointID: reloadChargePointID}
}

// Run consumes msgs until the channel closes, dispatching each message in
// turn. It is meant to be run on its own goroutine.
func (r *Router) Run(msgs <-chan eventbus.RawMessage) {
	for msg := range msgs {
		r.dispatch(msg)
	}
}

// dispatch routes a single message by its type discriminator. Unknown
// types are dropped silently; a handler decode failure is logged at
// warning level with no partial state update.
func (r *Router) dispatch(msg eventbus.RawMessage) {
	switch msg.Type {
	case "StatusNotification":
		r.onStatusNotification(msg.Data)
	case "MeterValues":
		r.onMeterValues(msg.Data)
	case "pilotState":
		r.onPilotState(msg.Data)
	case "proximityState":
		r.onProximityState(msg.Data)
	case "ChargeStationStatusNotification":
		r.onChargeStationStatusNotification(msg.Data)
	case "ChargeSessionStatus":
		r.onChargeSessionStatus(msg.Data)
	case "serialNumber":
		r.onSerialNumber(msg.Data)
	case "phaseType":
		r.onPhaseType(msg.Data)
	case "powerOptimizer":
		r.onPowerOptimizer(msg.Data)
	case "powerOptimizerLimits":
		r.onPowerOptimizerLimits(msg.Data)
	case "ocppUpdate":
		r.onOcppUpdate()
	case "AuthorizationStatus":
		r.onAuthorizationStatus(msg.Data)
	case "currentOfferedEv":
		r.onCurrentOfferedEv(msg.Data)
	case "minCurrent":
		r.onMinCurrent(msg.Data)
	case "maximumCurrent":
		r.onMaximumCurrent(msg.Data)
	case "proximityPilotCurrent":
		r.onProximityPilotCurrent(msg.Data)
	default:
		// Unknown message types are dropped silently.
	}
}

func (r *Router) warnDrop(kind string, err error) {
	r.logger.Printf("ingest: dropping %s, malformed payload: %v", kind, err)
}

// --- StatusNotification / ChargeStationStatusNotification ---

type statusNotificationPayload struct {
	Status          string `json:"status"`
	VendorErrorCode uint16 `json:"vendorErrorCode"`
}

func (r *Router) onStatusNotification(data json.RawMessage) {
	var p statusNotificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("StatusNotification", err)
		return
	}
	status, ok := chargePointStatusByName[p.Status]
	if !ok {
		r.logger.Printf("ingest: StatusNotification with unknown status %q dropped", p.Status)
		return
	}
	r.model.Point.SetStatusAndError(status, p.VendorErrorCode)
	registers.ApplyStatus(r.bank, r.model.Station.Snapshot().Status, status, p.VendorErrorCode)
}

type stationStatusPayload struct {
	Status string `json:"status"`
}

func (r *Router) onChargeStationStatusNotification(data json.RawMessage) {
	var p stationStatusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("ChargeStationStatusNotification", err)
		return
	}
	status, ok := stationStatusByName[p.Status]
	if !ok {
		r.logger.Printf("ingest: ChargeStationStatusNotification with unknown status %q dropped", p.Status)
		return
	}
	r.model.Station.SetStatus(status)
	registers.ApplyEquipmentStateOnly(r.bank, status, r.model.Point.Snapshot().Status)
}

// --- MeterValues ---

type meterValuesPayload struct {
	MeterValue []struct {
		SampledValue []struct {
			Measurand string      `json:"measurand"`
			Phase     string      `json:"phase"`
			Value     json.Number `json:"value"`
		} `json:"sampledValue"`
	} `json:"meterValue"`
}

func (r *Router) onMeterValues(data json.RawMessage) {
	var p meterValuesPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("MeterValues", err)
		return
	}

	var phases [3]registers.PhaseSample
	hasEnergy := false
	var totalEnergyWh uint32

	for _, mv := range p.MeterValue {
		for _, sv := range mv.SampledValue {
			idx, ok := phaseIndex[sv.Phase]
			switch sv.Measurand {
			case "Energy.Active.Import.Register":
				wh, err := sv.Value.Int64()
				if err != nil {
					continue
				}
				// Cumulative meter energy normally carries no phase; default to
				// phase 1 when the sample doesn't name one.
				phaseNum := 1
				if ok {
					phaseNum = idx + 1
				}
				r.model.Point.SetActiveEnergyWh(phaseNum, uint32(wh))
				hasEnergy = true
			case "Current.Import":
				if !ok {
					continue
				}
				a, err := sv.Value.Int64()
				if err != nil {
					continue
				}
				phases[idx].HasCurrent = true
				phases[idx].CurrentA = uint16(a)
				r.model.Point.SetPhaseCurrentAmps(idx+1, uint16(a))
			case "Power.Active.Import":
				if !ok {
					continue
				}
				w, err := sv.Value.Int64()
				if err != nil {
					continue
				}
				phases[idx].HasPower = true
				phases[idx].PowerW = uint32(w)
				r.model.Point.SetPhaseActivePowerWatts(idx+1, uint32(w))
			case "Voltage":
				if !ok {
					continue
				}
				mv, err := sv.Value.Float64()
				if err != nil {
					continue
				}
				phases[idx].HasVoltage = true
				phases[idx].VoltageMv = int32(mv)
				r.model.Point.SetPhaseVoltageMilliVolts(idx+1, int32(mv))
			default:
				// Unknown measurands are ignored.
			}
		}
	}

	if hasEnergy {
		totalEnergyWh = r.model.Point.TotalActiveEnergyWh()
	}
	registers.ApplyMeterValues(r.bank, phases, hasEnergy, totalEnergyWh)
}

var phaseIndex = map[string]int{"L1": 0, "L2": 1, "L3": 2}

// --- pilot/proximity state ---

type valuePayload struct {
	Value int `json:"value"`
}

func (r *Router) onPilotState(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("pilotState", err)
		return
	}
	r.model.Point.SetPilotState(uint8(p.Value))
	pt := r.model.Point.Snapshot()
	registers.ApplyCableState(r.bank, pt.PilotState, pt.ProximityState)
}

func (r *Router) onProximityState(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("proximityState", err)
		return
	}
	r.model.Point.SetProximityState(uint8(p.Value))
	pt := r.model.Point.Snapshot()
	registers.ApplyCableState(r.bank, pt.PilotState, pt.ProximityState)
}

// --- ChargeSessionStatus ---

type chargeSessionStatusPayload struct {
	StartTime     int64  `json:"startTime"`
	FinishTime    *int64 `json:"finishTime"`
	InitialEnergy uint32 `json:"initialEnergy"`
	LastEnergy    uint32 `json:"lastEnergy"`
	Status        string `json:"status"`
}

func (r *Router) onChargeSessionStatus(data json.RawMessage) {
	var p chargeSessionStatusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("ChargeSessionStatus", err)
		return
	}
	status, ok := sessionStatusByName[p.Status]
	if !ok {
		r.logger.Printf("ingest: ChargeSessionStatus with unknown status %q dropped", p.Status)
		return
	}
	r.model.Session.SetFromNotification(p.StartTime, p.FinishTime, p.InitialEnergy, p.LastEnergy, status)
	registers.ApplySessionFull(r.bank, r.model.Session.Snapshot(), r.model.Point.TotalActiveEnergyWh(), time.Now())
}

// --- station identity / config fields ---

type stringPayload struct {
	Value string `json:"value"`
}

func (r *Router) onSerialNumber(data json.RawMessage) {
	var p stringPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("serialNumber", err)
		return
	}
	r.model.Station.SetSerial(p.Value)
	r.applyIdentity()
}

func (r *Router) onPhaseType(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("phaseType", err)
		return
	}
	r.model.Station.SetPhaseCount(p.Value)
	r.applyIdentity()
}

// applyIdentity re-derives the SERIAL_NUMBER/CHARGEPOINT_ID/BRAND/MODEL/
// FIRMWARE_VERSION/NUMBER_OF_PHASES registers from the current station
// snapshot, for any event that touches one of those fields.
func (r *Router) applyIdentity() {
	st := r.model.Station.Snapshot()
	registers.ApplyIdentity(r.bank, &st)
}

type boolPayload struct {
	Value bool `json:"value"`
}

func (r *Router) onPowerOptimizer(data json.RawMessage) {
	var p boolPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("powerOptimizer", err)
		return
	}
	r.model.Station.SetPowerOptimizer(p.Value)
}

type powerOptimizerLimitsPayload struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *Router) onPowerOptimizerLimits(data json.RawMessage) {
	var p powerOptimizerLimitsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("powerOptimizerLimits", err)
		return
	}
	r.model.Station.SetPowerOptimizerLimits(p.Min, p.Max)
}

func (r *Router) onOcppUpdate() {
	if r.reloadChargePointID == nil {
		return
	}
	id, err := r.reloadChargePointID()
	if err != nil {
		r.logger.Printf("ingest: ocppUpdate reload failed: %v", err)
		return
	}
	r.model.Station.SetChargePointID(id)
	r.applyIdentity()
}

func (r *Router) onAuthorizationStatus(data json.RawMessage) {
	var p stringPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("AuthorizationStatus", err)
		return
	}
	auth, ok := authorizationStatusByName[p.Value]
	if !ok {
		r.logger.Printf("ingest: AuthorizationStatus with unknown value %q dropped", p.Value)
		return
	}
	r.model.Point.SetAuthorization(auth)
}

// --- current control/reporting ---

type currentOfferedPayload struct {
	Value  uint16 `json:"value"`
	Reason string `json:"reason"`
}

func (r *Router) onCurrentOfferedEv(data json.RawMessage) {
	var p currentOfferedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("currentOfferedEv", err)
		return
	}
	reason, ok := currentOfferReasonByName[p.Reason]
	if !ok {
		reason = state.NormalReason
	}
	r.model.Point.SetCurrentOffered(p.Value, reason)
	registers.ApplyCurrentOffered(r.bank, p.Value)
}

func (r *Router) onMinCurrent(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("minCurrent", err)
		return
	}
	r.model.Point.SetMinCurrent(uint16(p.Value))
	registers.ApplyMinCurrent(r.bank, uint16(p.Value))
}

func (r *Router) onMaximumCurrent(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("maximumCurrent", err)
		return
	}
	r.model.Point.SetMaxCurrent(uint16(p.Value))
	registers.ApplyMaxCurrent(r.bank, uint16(p.Value))
}

func (r *Router) onProximityPilotCurrent(data json.RawMessage) {
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.warnDrop("proximityPilotCurrent", err)
		return
	}
	r.model.Point.SetCableMaxCurrent(uint16(p.Value))
	registers.ApplyCableMaxCurrent(r.bank, uint16(p.Value))
}
