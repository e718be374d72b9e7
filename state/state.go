// Package state holds the station's live domain model: identity and
// configuration (Station), the connector's runtime values (ChargePoint),
// and the active charging session (ChargeSession).
//
// The setters below are called by the cold-start loader at boot and by the
// ingest goroutine. Other goroutines read a point-in-time copy via Snapshot.
package state

import "sync"

// StationStatus enumerates the charge station's overall lifecycle status.
type StationStatus int

const (
	StationNormal StationStatus = iota
	StationInitializing
	StationWaitingForConfiguration
	StationInstallingFirmware
	StationWaitingForMasterAddition
	StationAddedUserCard
	StationRemovedUserCard
	StationWaitingForConnection
)

// ChargePointStatus enumerates the connector status, in the declaration
// order that maps directly onto CHARGEPOINT_STATE (Available=0 .. Faulted=8).
type ChargePointStatus int

const (
	Available ChargePointStatus = iota
	Preparing
	Charging
	SuspendedEVSE
	SuspendedEV
	Finishing
	Reserved
	Unavailable
	Faulted
)

// AuthorizationStatus enumerates authorization progress for a connector.
type AuthorizationStatus int

const (
	AuthTimeout AuthorizationStatus = iota
	AuthStart
	AuthFinish
)

// Availability enumerates whether a connector accepts new sessions.
type Availability int

const (
	Operative Availability = iota
	Inoperative
)

// CurrentOfferReason enumerates why a particular current was offered to the EV.
type CurrentOfferReason int

const (
	NormalReason CurrentOfferReason = iota
	MaxCurrentReason
	CableLimitReason
	FailsafeReason
	PowerOptimizerReason
)

// SessionStatus enumerates a ChargeSession's lifecycle.
type SessionStatus int

const (
	SessionStopped SessionStatus = iota
	SessionStarted
	SessionPaused
	SessionSuspended
)

// Station is the station's identity and configuration, created once at
// cold-start and mutated only by the ingest router.
type Station struct {
	mu sync.RWMutex

	Serial             string
	Brand              string
	Model              string
	HMIFirmwareVersion string
	ACPWFirmwareVersion string
	ChargePointID      string
	PhaseCount         int // 1 or 3
	PowerOptimizer     bool
	PowerOptimizerMin  float64
	PowerOptimizerMax  float64
	Status             StationStatus
}

// NewStation returns a Station defaulted per §7's degrade-to-defaults policy.
func NewStation() *Station {
	return &Station{
		PhaseCount: 1,
		Status:     StationInitializing,
	}
}

// Snapshot returns a value copy safe to read without holding s's lock.
func (s *Station) Snapshot() Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Station{
		Serial:              s.Serial,
		Brand:               s.Brand,
		Model:               s.Model,
		HMIFirmwareVersion:  s.HMIFirmwareVersion,
		ACPWFirmwareVersion: s.ACPWFirmwareVersion,
		ChargePointID:       s.ChargePointID,
		PhaseCount:          s.PhaseCount,
		PowerOptimizer:      s.PowerOptimizer,
		PowerOptimizerMin:   s.PowerOptimizerMin,
		PowerOptimizerMax:   s.PowerOptimizerMax,
		Status:              s.Status,
	}
}

func (s *Station) SetSerial(v string) { s.mu.Lock(); defer s.mu.Unlock(); s.Serial = v }
func (s *Station) SetChargePointID(v string) { s.mu.Lock(); defer s.mu.Unlock(); s.ChargePointID = v }
func (s *Station) SetBrand(v string) { s.mu.Lock(); defer s.mu.Unlock(); s.Brand = v }
func (s *Station) SetModel(v string) { s.mu.Lock(); defer s.mu.Unlock(); s.Model = v }
func (s *Station) SetHMIFirmwareVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HMIFirmwareVersion = v
}
func (s *Station) SetACPWFirmwareVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ACPWFirmwareVersion = v
}
func (s *Station) SetPhaseCount(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == 1 || v == 3 {
		s.PhaseCount = v
	}
}
func (s *Station) SetPowerOptimizer(v bool) { s.mu.Lock(); defer s.mu.Unlock(); s.PowerOptimizer = v }
func (s *Station) SetPowerOptimizerLimits(min, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PowerOptimizerMin, s.PowerOptimizerMax = min, max
}
func (s *Station) SetStatus(v StationStatus) { s.mu.Lock(); defer s.mu.Unlock(); s.Status = v }

// FirmwareVersion returns the HMI and ACPW firmware versions concatenated,
// matching FIRMWARE_VERSION's encoding (HMI ∥ ACPW).
func (s *Station) FirmwareVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HMIFirmwareVersion + s.ACPWFirmwareVersion
}

// PhaseMeasurement holds one phase's electrical measurements.
type PhaseMeasurement struct {
	VoltageMilliVolts int32 // source unit: mV
	CurrentAmps       uint16
	ActivePowerWatts  uint32
	ActiveEnergyWh    uint32
}

// ChargePoint is the live connector state for the single EVSE connector
// this personality exposes.
type ChargePoint struct {
	mu sync.RWMutex

	Status             ChargePointStatus
	Authorization      AuthorizationStatus
	VendorErrorCode    uint16
	PilotState         uint8 // 0-5
	ProximityState     uint8 // 0/1
	Phases             [3]PhaseMeasurement
	Availability       Availability
	MinCurrent         uint16
	MaxCurrent         uint16
	AvailableCurrent   uint16
	CurrentOfferedToEV uint16
	CurrentOfferReason CurrentOfferReason
	CableMaxCurrent    uint16
	FailsafeCurrent    uint16
	FailsafeTimeout    uint16 // seconds
	ModbusTCPCurrent   uint16 // last client-commanded current via CHARGING_CURRENT
}

// NewChargePoint returns a ChargePoint defaulted per §7's degrade-to-defaults
// policy (Available, Stopped-equivalent idle state).
func NewChargePoint() *ChargePoint {
	return &ChargePoint{
		Status:       Available,
		Availability: Operative,
	}
}

func (p *ChargePoint) Snapshot() ChargePoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ChargePoint{
		Status:             p.Status,
		Authorization:      p.Authorization,
		VendorErrorCode:    p.VendorErrorCode,
		PilotState:         p.PilotState,
		ProximityState:     p.ProximityState,
		Phases:             p.Phases,
		Availability:       p.Availability,
		MinCurrent:         p.MinCurrent,
		MaxCurrent:         p.MaxCurrent,
		AvailableCurrent:   p.AvailableCurrent,
		CurrentOfferedToEV: p.CurrentOfferedToEV,
		CurrentOfferReason: p.CurrentOfferReason,
		CableMaxCurrent:    p.CableMaxCurrent,
		FailsafeCurrent:    p.FailsafeCurrent,
		FailsafeTimeout:    p.FailsafeTimeout,
		ModbusTCPCurrent:   p.ModbusTCPCurrent,
	}
}

func (p *ChargePoint) SetStatusAndError(status ChargePointStatus, vendorErrorCode uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = status
	p.VendorErrorCode = vendorErrorCode
}

func (p *ChargePoint) SetPilotState(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= 5 {
		p.PilotState = v
	}
}

func (p *ChargePoint) SetProximityState(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= 1 {
		p.ProximityState = v
	}
}

func (p *ChargePoint) SetAuthorization(v AuthorizationStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Authorization = v
}

func (p *ChargePoint) SetCurrentOffered(amps uint16, reason CurrentOfferReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentOfferedToEV = amps
	p.CurrentOfferReason = reason
}

func (p *ChargePoint) SetMinCurrent(v uint16) { p.mu.Lock(); defer p.mu.Unlock(); p.MinCurrent = v }
func (p *ChargePoint) SetMaxCurrent(v uint16) { p.mu.Lock(); defer p.mu.Unlock(); p.MaxCurrent = v }
func (p *ChargePoint) SetCableMaxCurrent(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CableMaxCurrent = v
}
func (p *ChargePoint) SetFailsafeCurrent(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailsafeCurrent = v
}
func (p *ChargePoint) SetFailsafeTimeout(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailsafeTimeout = v
}
func (p *ChargePoint) SetModbusTCPCurrent(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModbusTCPCurrent = v
}

// SetPhaseVoltage/Current/Power/Energy mutate one phase (1-indexed: 1,2,3).
func (p *ChargePoint) SetPhaseVoltageMilliVolts(phase int, mv int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase >= 1 && phase <= 3 {
		p.Phases[phase-1].VoltageMilliVolts = mv
	}
}

func (p *ChargePoint) SetPhaseCurrentAmps(phase int, amps uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase >= 1 && phase <= 3 {
		p.Phases[phase-1].CurrentAmps = amps
	}
}

func (p *ChargePoint) SetPhaseActivePowerWatts(phase int, watts uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase >= 1 && phase <= 3 {
		p.Phases[phase-1].ActivePowerWatts = watts
	}
}

func (p *ChargePoint) SetActiveEnergyWh(phase int, wh uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase >= 1 && phase <= 3 {
		p.Phases[phase-1].ActiveEnergyWh = wh
	}
}

// TotalActiveEnergyWh sums the three phases' cumulative active energy
// counters, used by the watchdog session task for SESSION_ENERGY.
func (p *ChargePoint) TotalActiveEnergyWh() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total uint32
	for _, ph := range p.Phases {
		total += ph.ActiveEnergyWh
	}
	return total
}

// TotalActivePowerWatts sums the three phases' instantaneous active power.
func (p *ChargePoint) TotalActivePowerWatts() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total uint32
	for _, ph := range p.Phases {
		total += ph.ActivePowerWatts
	}
	return total
}

// ChargeSession is the currently active (or most recently stopped) session.
type ChargeSession struct {
	mu sync.RWMutex

	StartTime     int64 // epoch seconds
	StopTime      int64 // epoch seconds, 0 while active
	InitialEnergy uint32
	LastEnergy    uint32
	Status        SessionStatus
}

// NewChargeSession returns a ChargeSession defaulted to Stopped.
func NewChargeSession() *ChargeSession {
	return &ChargeSession{Status: SessionStopped}
}

func (c *ChargeSession) Snapshot() ChargeSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ChargeSession{
		StartTime:     c.StartTime,
		StopTime:      c.StopTime,
		InitialEnergy: c.InitialEnergy,
		LastEnergy:    c.LastEnergy,
		Status:        c.Status,
	}
}

// SetFromNotification updates the session atomically from a
// ChargeSessionStatus event; stopTime of nil maps to an ongoing session.
func (c *ChargeSession) SetFromNotification(startTime int64, stopTime *int64, initialEnergy, lastEnergy uint32, status SessionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartTime = startTime
	if stopTime == nil {
		c.StopTime = 0
	} else {
		c.StopTime = *stopTime
	}
	c.InitialEnergy = initialEnergy
	c.LastEnergy = lastEnergy
	c.Status = status
}

// Model bundles the three domain objects a single connector needs. It is
// the container ingest and watchdog both operate against.
type Model struct {
	Station *Station
	Point   *ChargePoint
	Session *ChargeSession
}

// NewModel returns a Model with all three sub-objects defaulted.
func NewModel() *Model {
	return &Model{
		Station: NewStation(),
		Point:   NewChargePoint(),
		Session: NewChargeSession(),
	}
}
