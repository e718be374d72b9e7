// Package station is the top-level wiring container: it owns the register
// bank, the state model, the event bus endpoint, and starts/stops the
// Modbus TCP server, the ingest consumer, the watchdog's three tasks, and
// the optional status server under one shared context: a single struct
// built once from Config, with a blocking Start(ctx) and an idempotent
// Stop.
package station

import (
	"context"
	"log"
	"sync"

	"github.com/devskill-org/evse-modbus/config"
	"github.com/devskill-org/evse-modbus/coldstart"
	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/ingest"
	"github.com/devskill-org/evse-modbus/modbustcp"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
	"github.com/devskill-org/evse-modbus/status"
	"github.com/devskill-org/evse-modbus/watchdog"
)

// Station is the assembled personality: the register banks, Modbus TCP
// server, event bus endpoint, ingest router, watchdog, and cold-start
// loader, plus the ambient status endpoint, wired against one shared bank
// and model.
type Station struct {
	cfg    *config.Config
	logger *log.Logger

	bank   *registers.Bank
	model  *state.Model
	bus    *eventbus.Endpoint
	modbus *modbustcp.Server
	router *ingest.Router
	dog    *watchdog.Watchdog
	loader *coldstart.Loader
	web    *status.Server

	mu      sync.Mutex
	running bool
}

// New assembles a Station from cfg. It does not start any network
// listener, database read, or goroutine until Start is called.
func New(cfg *config.Config, logger *log.Logger) (*Station, error) {
	if logger == nil {
		logger = log.Default()
	}

	bank := registers.NewBank(logger)
	model := state.NewModel()
	bus := eventbus.New(cfg.EventBusNetwork, cfg.EventBusAddress, logger)

	modbusSrv, err := modbustcp.New(modbustcp.Config{
		ListenAddress: cfg.ModbusListenAddress,
		IdleTimeout:   cfg.ModbusIdleTimeout,
	}, bank, bus, logger)
	if err != nil {
		return nil, err
	}

	loader := coldstart.New(coldstart.Paths{
		AgentDB:     cfg.AgentDBPath,
		WebconfigDB: cfg.WebconfigDBPath,
		VFactoryDB:  cfg.VFactoryDBPath,
		SystemDB:    cfg.SystemDBPath,
	}, logger)

	router := ingest.New(bank, model, loader.ReloadChargePointID, logger)
	dog := watchdog.New(bank, model, bus, logger)
	web := status.New(model, bank, cfg.StatusPort)

	return &Station{
		cfg:    cfg,
		logger: logger,
		bank:   bank,
		model:  model,
		bus:    bus,
		modbus: modbusSrv,
		router: router,
		dog:    dog,
		loader: loader,
		web:    web,
	}, nil
}

// Bank exposes the register bank, for the -register-dump debug flag.
func (s *Station) Bank() *registers.Bank { return s.bank }

// Start brings every component up and blocks until ctx is cancelled, then
// tears everything down before returning.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.bus.Start(ctx)

	go s.router.Run(s.bus.Receive())

	s.dog.Start(ctx)

	if err := s.modbus.Start(); err != nil {
		s.logger.Printf("station: failed to start modbus server: %v", err)
	}

	if err := s.web.Start(); err != nil {
		s.logger.Printf("station: failed to start status server: %v", err)
	}

	// Cold-start runs after the event bus and Modbus listener are up, so
	// its GeneralStatus publish and bulk register seed land on a live
	// system.
	s.loader.Run(s.model, s.bank, s.bus)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop tears down every component started by Start. It is safe to call
// more than once.
func (s *Station) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if err := s.modbus.Stop(); err != nil {
		s.logger.Printf("station: error stopping modbus server: %v", err)
	}
	if err := s.web.Stop(context.Background()); err != nil {
		s.logger.Printf("station: error stopping status server: %v", err)
	}
	if err := s.bus.Close(); err != nil {
		s.logger.Printf("station: error closing event bus: %v", err)
	}
	s.dog.Wait()
}
