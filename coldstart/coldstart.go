// Package coldstart is the one-shot boot-time loader: it reads four
// read-only SQLite databases to populate the station identity, the
// connector's live state, and the most recent charge session, then seeds
// the register bank by bulk write-through and asks the event bus for a
// fresh snapshot.
//
// Every query failure here is treated as transient I/O: logged and
// degraded to the field's zero value, never fatal. The process always
// continues past cold-start, even with all four databases unreachable.
package coldstart

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

// Paths holds the four on-device database file paths. Overridable for
// tests; station.New builds it from the configuration, whose defaults are
// the real on-device paths.
type Paths struct {
	AgentDB     string // /var/lib/vestel/agent.db
	WebconfigDB string // /var/lib/vestel/webconfig.db
	VFactoryDB  string // /run/media/mmcblk1p3/vfactory.db
	SystemDB    string // /usr/lib/vestel/system.db
}

// DefaultPaths returns the fixed on-device paths.
func DefaultPaths() Paths {
	return Paths{
		AgentDB:     "/var/lib/vestel/agent.db",
		WebconfigDB: "/var/lib/vestel/webconfig.db",
		VFactoryDB:  "/run/media/mmcblk1p3/vfactory.db",
		SystemDB:    "/usr/lib/vestel/system.db",
	}
}

// Loader runs the cold-start sequence once, against a model/bank pair that
// already exist (state.NewModel/registers.NewBank give §7's defaults).
type Loader struct {
	paths  Paths
	logger *log.Logger
}

// New constructs a Loader over paths.
func New(paths Paths, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{paths: paths, logger: logger}
}

// Run performs the four reads, applies whatever was recovered onto model
// and bank, and publishes GeneralStatus once done. Individual read
// failures are logged and leave the corresponding fields at their
// construction-time defaults; Run itself never returns an error.
func (l *Loader) Run(model *state.Model, bank *registers.Bank, bus *eventbus.Endpoint) {
	l.loadAgentDB(model)
	l.loadWebconfigDB(model)
	l.loadVFactoryDB(model)
	l.loadSystemDB(model)

	l.seedRegisters(model, bank)

	if err := bus.Send(eventbus.Message{Type: "GeneralStatus"}); err != nil {
		l.logger.Printf("coldstart: failed to publish GeneralStatus: %v", err)
	}
}

func (l *Loader) openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// loadAgentDB reads deviceDetails/chargeStation for identity and runtime
// fields, chargePoints for the live connector state, and
// activeChargeSession for the most recent session.
func (l *Loader) loadAgentDB(model *state.Model) {
	db, err := l.openReadOnly(l.paths.AgentDB)
	if err != nil {
		l.logger.Printf("coldstart: agent.db open failed, using defaults: %v", err)
		return
	}
	defer db.Close()

	l.loadChargeStation(db, model)
	l.loadChargePoint(db, model)
	l.loadActiveChargeSession(db, model)
}

func (l *Loader) loadChargeStation(db *sql.DB, model *state.Model) {
	row := db.QueryRow(`
		SELECT deviceDetails.serialNumber, deviceDetails.acpwFirmwareVersion,
		       chargeStation.numberOfPhases, chargeStation.powerOptimizer,
		       chargeStation.powerOptimizerMin, chargeStation.powerOptimizerMax
		FROM chargeStation INNER JOIN deviceDetails USING(ID)
	`)

	var (
		serial         sql.NullString
		acpwFW         sql.NullString
		phases         sql.NullInt64
		powerOptimizer sql.NullBool
		poMin, poMax   sql.NullFloat64
	)
	if err := row.Scan(&serial, &acpwFW, &phases, &powerOptimizer, &poMin, &poMax); err != nil {
		l.logger.Printf("coldstart: chargeStation/deviceDetails read failed: %v", err)
		return
	}

	if serial.Valid {
		model.Station.SetSerial(serial.String)
	}
	if acpwFW.Valid {
		model.Station.SetACPWFirmwareVersion(acpwFW.String)
	}
	if phases.Valid {
		model.Station.SetPhaseCount(int(phases.Int64))
	}
	if powerOptimizer.Valid {
		model.Station.SetPowerOptimizer(powerOptimizer.Bool)
	}
	if poMin.Valid || poMax.Valid {
		model.Station.SetPowerOptimizerLimits(poMin.Float64, poMax.Float64)
	}
}

func (l *Loader) loadChargePoint(db *sql.DB, model *state.Model) {
	row := db.QueryRow(`
		SELECT status, vendorErrorCode, pilotState, proximityState,
		       minCurrent, maxCurrent, cableMaxCurrent
		FROM chargePoints WHERE chargePointId = 1
	`)

	var (
		status                        sql.NullString
		vendorErrorCode               sql.NullInt64
		pilotState, proximityState    sql.NullInt64
		minCurrent, maxCurrent        sql.NullInt64
		cableMaxCurrent               sql.NullInt64
	)
	if err := row.Scan(&status, &vendorErrorCode, &pilotState, &proximityState, &minCurrent, &maxCurrent, &cableMaxCurrent); err != nil {
		l.logger.Printf("coldstart: chargePoints read failed: %v", err)
		return
	}

	if status.Valid {
		if v, ok := chargePointStatusByName[status.String]; ok {
			model.Point.SetStatusAndError(v, uint16(vendorErrorCode.Int64))
		}
	}
	if pilotState.Valid {
		model.Point.SetPilotState(uint8(pilotState.Int64))
	}
	if proximityState.Valid {
		model.Point.SetProximityState(uint8(proximityState.Int64))
	}
	if minCurrent.Valid {
		model.Point.SetMinCurrent(uint16(minCurrent.Int64))
	}
	if maxCurrent.Valid {
		model.Point.SetMaxCurrent(uint16(maxCurrent.Int64))
	}
	if cableMaxCurrent.Valid {
		model.Point.SetCableMaxCurrent(uint16(cableMaxCurrent.Int64))
	}
}

func (l *Loader) loadActiveChargeSession(db *sql.DB, model *state.Model) {
	row := db.QueryRow(`
		SELECT startTime, finishTime, initialEnergy, lastEnergy, status
		FROM activeChargeSession WHERE id = 1
	`)

	var (
		startTime, initialEnergy, lastEnergy sql.NullInt64
		finishTime                           sql.NullInt64
		status                                sql.NullString
	)
	if err := row.Scan(&startTime, &finishTime, &initialEnergy, &lastEnergy, &status); err != nil {
		l.logger.Printf("coldstart: activeChargeSession read failed: %v", err)
		return
	}

	sessionStatus, ok := sessionStatusByName[status.String]
	if !ok {
		sessionStatus = state.SessionStopped
	}
	var finish *int64
	if finishTime.Valid {
		v := finishTime.Int64
		finish = &v
	}
	model.Session.SetFromNotification(startTime.Int64, finish, uint32(initialEnergy.Int64), uint32(lastEnergy.Int64), sessionStatus)
}

// loadWebconfigDB reads ocppSettings.chargePointId.
func (l *Loader) loadWebconfigDB(model *state.Model) {
	db, err := l.openReadOnly(l.paths.WebconfigDB)
	if err != nil {
		l.logger.Printf("coldstart: webconfig.db open failed, using defaults: %v", err)
		return
	}
	defer db.Close()

	var chargePointID sql.NullString
	row := db.QueryRow(`SELECT chargePointId FROM ocppSettings`)
	if err := row.Scan(&chargePointID); err != nil {
		l.logger.Printf("coldstart: ocppSettings read failed: %v", err)
		return
	}
	if chargePointID.Valid {
		model.Station.SetChargePointID(chargePointID.String)
	}
}

// ReloadChargePointID re-opens webconfig.db and re-reads chargePointId, for
// the ingest router's ocppUpdate handler.
func (l *Loader) ReloadChargePointID() (string, error) {
	db, err := l.openReadOnly(l.paths.WebconfigDB)
	if err != nil {
		return "", fmt.Errorf("coldstart: webconfig.db open failed: %w", err)
	}
	defer db.Close()

	var chargePointID sql.NullString
	row := db.QueryRow(`SELECT chargePointId FROM ocppSettings`)
	if err := row.Scan(&chargePointID); err != nil {
		return "", fmt.Errorf("coldstart: ocppSettings read failed: %w", err)
	}
	return chargePointID.String, nil
}

// loadVFactoryDB reads deviceDetails for model and customer, mapping
// customer to Brand.
func (l *Loader) loadVFactoryDB(model *state.Model) {
	db, err := l.openReadOnly(l.paths.VFactoryDB)
	if err != nil {
		l.logger.Printf("coldstart: vfactory.db open failed, using defaults: %v", err)
		return
	}
	defer db.Close()

	var deviceModel, customer sql.NullString
	row := db.QueryRow(`SELECT model, customer FROM deviceDetails`)
	if err := row.Scan(&deviceModel, &customer); err != nil {
		l.logger.Printf("coldstart: vfactory deviceDetails read failed: %v", err)
		return
	}
	if deviceModel.Valid {
		model.Station.SetModel(deviceModel.String)
	}
	if customer.Valid {
		model.Station.SetBrand(customer.String)
	}
}

// loadSystemDB reads deviceInfo.hmiVersion.
func (l *Loader) loadSystemDB(model *state.Model) {
	db, err := l.openReadOnly(l.paths.SystemDB)
	if err != nil {
		l.logger.Printf("coldstart: system.db open failed, using defaults: %v", err)
		return
	}
	defer db.Close()

	var hmiVersion sql.NullString
	row := db.QueryRow(`SELECT hmiVersion FROM deviceInfo`)
	if err := row.Scan(&hmiVersion); err != nil {
		l.logger.Printf("coldstart: deviceInfo read failed: %v", err)
		return
	}
	if hmiVersion.Valid {
		model.Station.SetHMIFirmwareVersion(hmiVersion.String)
	}
}

// seedRegisters bulk-writes every register this loader has enough state to
// derive, before the GeneralStatus publish.
func (l *Loader) seedRegisters(model *state.Model, bank *registers.Bank) {
	st := model.Station.Snapshot()
	registers.ApplyIdentity(bank, &st)

	pt := model.Point.Snapshot()
	registers.ApplyStatus(bank, st.Status, pt.Status, pt.VendorErrorCode)
	registers.ApplyCableState(bank, pt.PilotState, pt.ProximityState)
	registers.ApplyMinCurrent(bank, pt.MinCurrent)
	registers.ApplyMaxCurrent(bank, pt.MaxCurrent)
	registers.ApplyCableMaxCurrent(bank, pt.CableMaxCurrent)
	registers.ApplyCurrentOffered(bank, pt.CurrentOfferedToEV)

	session := model.Session.Snapshot()
	registers.ApplySessionFull(bank, session, model.Point.TotalActiveEnergyWh(), time.Now())
}
