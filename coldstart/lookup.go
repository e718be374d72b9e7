package coldstart

import "github.com/devskill-org/evse-modbus/state"

// Same OCPP-derived vocabulary the ingest router uses for the live event
// stream; cold-start reads the same status columns out of agent.db, so it
// needs the same string-to-enum mapping. ingest's tables are unexported, so
// this package keeps its own copy.

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

var sessionStatusByName = map[string]state.SessionStatus{
	"Stopped":   state.SessionStopped,
	"Started":   state.SessionStarted,
	"Paused":    state.SessionPaused,
	"Suspended": state.SessionSuspended,
}
