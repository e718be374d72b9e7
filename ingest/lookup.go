package ingest

import "github.com/devskill-org/evse-modbus/state"

// String vocabularies match the OCPP status-notification enums the event
// bus carries; an unrecognized key means the message is dropped and a
// warning logged, with no partial state update.

var chargePointStatusByName = map[string]state.ChargePointStatus{
	"Available":     state.Available,
	"Preparing":     state.Preparing,
	"Charging":      state.Charging,
	"SuspendedEVSE": state.SuspendedEVSE,
	"SuspendedEV":   state.SuspendedEV,
	"Finishing":     state.Finishing,
	"Reserved":      state.Reserved,
	"Unavailable":   state.Unavailable,
	"Faulted":       state.Faulted,
}

var stationStatusByName = map[string]state.StationStatus{
	"Normal":                      state.StationNormal,
	"Initializing":                state.StationInitializing,
	"WaitingForConfiguration":     state.StationWaitingForConfiguration,
	"InstallingFirmware":          state.StationInstallingFirmware,
	"WaitingForMasterAddition":    state.StationWaitingForMasterAddition,
	"AddedUserCard":               state.StationAddedUserCard,
	"RemovedUserCard":             state.StationRemovedUserCard,
	"WaitingForConnection":        state.StationWaitingForConnection,
}

var sessionStatusByName = map[string]state.SessionStatus{
	"Stopped":   state.SessionStopped,
	"Started":   state.SessionStarted,
	"Paused":    state.SessionPaused,
	"Suspended": state.SessionSuspended,
}

var authorizationStatusByName = map[string]state.AuthorizationStatus{
	"Timeout": state.AuthTimeout,
	"Start":   state.AuthStart,
	"Finish":  state.AuthFinish,
}

var currentOfferReasonByName = map[string]state.CurrentOfferReason{
	"Normal":         state.NormalReason,
	"MaxCurrent":     state.MaxCurrentReason,
	"CableLimit":     state.CableLimitReason,
	"Failsafe":       state.FailsafeReason,
	"PowerOptimizer": state.PowerOptimizerReason,
}
