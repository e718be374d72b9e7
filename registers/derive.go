package registers

import "github.com/devskill-org/evse-modbus/state"

// ChargepointStateValue maps a ChargePointStatus to its CHARGEPOINT_STATE
// encoding: Available=0 .. Faulted=8, in declaration order.
func ChargepointStateValue(status state.ChargePointStatus) uint16 {
	return uint16(status)
}

// ChargingStateValue returns 1 iff status is Charging, else 0.
func ChargingStateValue(status state.ChargePointStatus) uint16 {
	if status == state.Charging {
		return 1
	}
	return 0
}

// EquipmentStateValue derives EQUIPMENT_STATE from station and point status,
// evaluated in a fixed precedence order: station Initializing
// wins over everything, then point Faulted, then station
// InstallingFirmware, then point Unavailable, else Normal(1).
func EquipmentStateValue(stationStatus state.StationStatus, pointStatus state.ChargePointStatus) uint16 {
	switch {
	case stationStatus == state.StationInitializing:
		return 0
	case pointStatus == state.Faulted:
		return 2
	case stationStatus == state.StationInstallingFirmware:
		return 4
	case pointStatus == state.Unavailable:
		return 3
	default:
		return 1
	}
}

// CableStateValue derives CABLE_STATE from proximity and pilot state:
// proximityState=1 means no cable regardless of pilot state;
// otherwise pilotState buckets into {0,1}->1, {2,4}->2, {3,5}->3.
func CableStateValue(pilotState, proximityState uint8) uint16 {
	if proximityState == 1 {
		return 0
	}
	switch pilotState {
	case 0, 1:
		return 1
	case 2, 4:
		return 2
	case 3, 5:
		return 3
	default:
		return 1
	}
}

// ChargepointPowerWatts derives CHARGEPOINT_POWER: watts = 230 * maxCurrent.
func ChargepointPowerWatts(maxCurrent uint16) uint32 {
	return 230 * uint32(maxCurrent)
}

// VoltageVoltsFromMilliVolts rounds a millivolt reading to whole volts
// (source mV rounded to volts ÷ 1000), matching VOLTAGE_L{1,2,3}'s encoding.
func VoltageVoltsFromMilliVolts(mv int32) uint16 {
	if mv < 0 {
		mv = 0
	}
	return uint16((mv + 500) / 1000)
}

// MeterReadingFromWh rounds a Wh reading to the METER_READING scale
// (source Wh rounded to ÷10000).
func MeterReadingFromWh(wh uint32) uint32 {
	return (wh + 5000) / 10000
}

// DecimalDate encodes a (year-2000, month, day) as the decimal integer
// YYMMDD that the DATE register expects.
func DecimalDate(year, month, day int) uint32 {
	yy := year % 100
	return uint32(yy)*10000 + uint32(month)*100 + uint32(day)
}

// DecimalTime encodes (hour, minute, second) as the decimal integer HHMMSS
// that TIME and the SESSION_* time registers expect.
func DecimalTime(hour, minute, second int) uint32 {
	return uint32(hour)*10000 + uint32(minute)*100 + uint32(second)
}
