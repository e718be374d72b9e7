package registers

import (
	"time"

	"github.com/devskill-org/evse-modbus/state"
)

// ApplyIdentity writes the station's identity fields (SERIAL_NUMBER,
// CHARGEPOINT_ID, BRAND, MODEL, FIRMWARE_VERSION, NUMBER_OF_PHASES) into
// the input bank.
func ApplyIdentity(bank *Bank, st *Station) {
	bank.WriteROString(SerialNumber, st.Serial, SerialNumberSpan)
	bank.WriteROString(ChargePointID, st.ChargePointID, ChargePointIDSpan)
	bank.WriteROString(Brand, st.Brand, BrandSpan)
	bank.WriteROString(Model, st.Model, ModelSpan)
	bank.WriteROString(FirmwareVersion, st.HMIFirmwareVersion+st.ACPWFirmwareVersion, FirmwareVersionSpan)
	bank.WriteROU16(NumberOfPhases, uint16(st.PhaseCount))
}

// Station, ChargePoint and ChargeSession are aliases of the state package's
// types, so callers pass the values their Snapshot methods return directly.
type Station = state.Station
type ChargePoint = state.ChargePoint
type ChargeSession = state.ChargeSession

// ApplyStatus writes CHARGEPOINT_STATE, CHARGING_STATE, EVSE_FAULT_CODE and
// the derived EQUIPMENT_STATE, given the current station and point status.
func ApplyStatus(bank *Bank, stationStatus state.StationStatus, pointStatus state.ChargePointStatus, vendorErrorCode uint16) {
	bank.WriteROU16(ChargepointState, ChargepointStateValue(pointStatus))
	bank.WriteROU16(ChargingState, ChargingStateValue(pointStatus))
	bank.WriteROU16(EVSEFaultCode, vendorErrorCode)
	bank.WriteROU16(EquipmentState, EquipmentStateValue(stationStatus, pointStatus))
}

// ApplyEquipmentStateOnly recomputes EQUIPMENT_STATE alone, for events that
// only change station status (ChargeStationStatusNotification) or only
// point status where the full ApplyStatus triple isn't warranted.
func ApplyEquipmentStateOnly(bank *Bank, stationStatus state.StationStatus, pointStatus state.ChargePointStatus) {
	bank.WriteROU16(EquipmentState, EquipmentStateValue(stationStatus, pointStatus))
}

// ApplyCableState writes CABLE_STATE from pilot/proximity state.
func ApplyCableState(bank *Bank, pilotState, proximityState uint8) {
	bank.WriteROU16(CableState, CableStateValue(pilotState, proximityState))
}

// PhaseSample is one sampledValue-derived measurement for a single phase,
// used by ApplyMeterValues.
type PhaseSample struct {
	HasVoltage bool
	VoltageMv  int32
	HasCurrent bool
	CurrentA   uint16
	HasPower   bool
	PowerW     uint32
}

// ApplyMeterValues writes METER_READING and the per-phase current/voltage/
// active-power registers from a MeterValues event's parsed samples.
func ApplyMeterValues(bank *Bank, phases [3]PhaseSample, hasEnergy bool, energyWh uint32) {
	currentAddrs := [3]uint16{CurrentL1, CurrentL2, CurrentL3}
	voltageAddrs := [3]uint16{VoltageL1, VoltageL2, VoltageL3}
	powerAddrs := [3]uint16{ActivePowerL1, ActivePowerL2, ActivePowerL3}

	var totalPower uint32
	anyPower := false
	for i, ph := range phases {
		if ph.HasCurrent {
			bank.WriteROU16(currentAddrs[i], ph.CurrentA)
		}
		if ph.HasVoltage {
			bank.WriteROU16(voltageAddrs[i], VoltageVoltsFromMilliVolts(ph.VoltageMv))
		}
		if ph.HasPower {
			bank.WriteROU32(powerAddrs[i], ph.PowerW)
			totalPower += ph.PowerW
			anyPower = true
		}
	}
	if anyPower {
		bank.WriteROU32(ActivePowerTotal, totalPower)
	}
	if hasEnergy {
		bank.WriteROU32(MeterReading, MeterReadingFromWh(energyWh))
	}
}

// ApplySessionFull writes all SESSION_* registers from a freshly-updated
// ChargeSession, used when a ChargeSessionStatus event arrives.
func ApplySessionFull(bank *Bank, session ChargeSession, totalActiveEnergyWh uint32, now time.Time) {
	applySessionEnergyAndDuration(bank, session, totalActiveEnergyWh, now)

	startT := time.Unix(session.StartTime, 0).UTC()
	bank.WriteROU32(SessionStartTime, DecimalTime(startT.Hour(), startT.Minute(), startT.Second()))

	if session.StopTime == 0 {
		bank.WriteROU32(SessionEndTime, 0)
	} else {
		endT := time.Unix(session.StopTime, 0).UTC()
		bank.WriteROU32(SessionEndTime, DecimalTime(endT.Hour(), endT.Minute(), endT.Second()))
	}
}

// ApplySessionDerived recomputes SESSION_ENERGY and SESSION_DURATION only,
// for the watchdog's once-per-second session task.
func ApplySessionDerived(bank *Bank, session ChargeSession, totalActiveEnergyWh uint32, now time.Time) {
	applySessionEnergyAndDuration(bank, session, totalActiveEnergyWh, now)
}

func applySessionEnergyAndDuration(bank *Bank, session ChargeSession, totalActiveEnergyWh uint32, now time.Time) {
	energy := int64(totalActiveEnergyWh) - int64(session.InitialEnergy)
	if energy < 0 {
		energy = 0
	}
	bank.WriteROU32(SessionEnergy, uint32(energy))

	duration := now.Unix() - session.StartTime
	if duration < 0 {
		duration = 0
	}
	bank.WriteROU32(SessionDuration, uint32(duration))
}

// ApplyMinCurrent, ApplyMaxCurrent and ApplyCableMaxCurrent write
// EVSE_MIN_CURRENT, EVSE_MAX_CURRENT (and the CHARGEPOINT_POWER derived from
// max current) and CABLE_MAX_CURRENT respectively.
func ApplyMinCurrent(bank *Bank, v uint16) {
	bank.WriteROU16(EVSEMinCurrent, v)
}

func ApplyMaxCurrent(bank *Bank, v uint16) {
	bank.WriteROU16(EVSEMaxCurrent, v)
	bank.WriteROU32(ChargepointPower, ChargepointPowerWatts(v))
}

func ApplyCableMaxCurrent(bank *Bank, v uint16) {
	bank.WriteROU16(CableMaxCurrent, v)
}

// ApplyCurrentOffered writes SESSION_MAX_CURRENT from currentOfferedToEv
// (the reason code has no register of its own).
func ApplyCurrentOffered(bank *Bank, amps uint16) {
	bank.WriteROU16(SessionMaxCurrent, amps)
}

// ApplyDateTime writes DATE and TIME from the wall clock, once per tick of
// the watchdog's date/time task.
func ApplyDateTime(bank *Bank, now time.Time) {
	now = now.UTC()
	bank.WriteROU32(Date, DecimalDate(now.Year(), int(now.Month()), now.Day()))
	bank.WriteROU32(Time, DecimalTime(now.Hour(), now.Minute(), now.Second()))
}
