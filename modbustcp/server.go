// Package modbustcp is the Modbus TCP front-end. It wraps
// github.com/simonvetter/modbus — the underlying Modbus TCP framing
// library — with a request handler that answers reads from a
// registers.Bank and republishes control-register writes onto the event
// bus.
package modbustcp

import (
	"fmt"
	"log"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
)

// UnitID is the only unit/slave id this station answers on; any other
// value is rejected with an illegal-function exception.
const UnitID = 1

// Server binds 127.0.0.1:502, accepts at most one client at a time, and
// answers function codes 0x03/0x04/0x06/0x10/0x17 against a shared
// registers.Bank.
type Server struct {
	bank   *registers.Bank
	bus    *eventbus.Endpoint
	logger *log.Logger

	inner *modbus.ModbusServer
}

// Config configures the listen address and idle-connection timeout.
type Config struct {
	ListenAddress string        // host:port, e.g. "127.0.0.1:502"
	IdleTimeout   time.Duration // 0 disables idle disconnection
}

// New constructs a Server bound to bank and publishing control-register
// writes through bus. It does not start listening until Start is called.
func New(cfg Config, bank *registers.Bank, bus *eventbus.Endpoint, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{bank: bank, bus: bus, logger: logger}

	inner, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        "tcp://" + cfg.ListenAddress,
		Timeout:    cfg.IdleTimeout,
		MaxClients: 1,
	}, s)
	if err != nil {
		return nil, fmt.Errorf("modbustcp: failed to create server: %w", err)
	}
	s.inner = inner
	return s, nil
}

// Start begins accepting client connections. It returns once the listener
// is up; serving happens on library-owned goroutines, one per connection,
// with each accepted connection handled synchronously on its own thread.
func (s *Server) Start() error {
	if err := s.inner.Start(); err != nil {
		return fmt.Errorf("modbustcp: failed to start server: %w", err)
	}
	return nil
}

// Stop closes the listener and any active connection.
func (s *Server) Stop() error {
	return s.inner.Stop()
}

// HandleDiscreteInputs: this station exposes no discrete inputs.
func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleCoils: this station exposes no coils.
func (s *Server) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleInputRegisters answers 0x04 reads from the read-only bank.
func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) (res []uint16, err error) {
	if req.UnitId != UnitID {
		return nil, modbus.ErrIllegalFunction
	}
	if int(req.Addr)+int(req.Quantity) > registers.BankSize {
		return nil, modbus.ErrIllegalDataAddress
	}
	return s.bank.ReadInputRange(req.Addr, int(req.Quantity)), nil
}

// HandleHoldingRegisters answers 0x03 reads and applies 0x06/0x10/0x17
// writes against the holding bank. The library calls this single callback
// once per request, with req.IsWrite set for writes, and the loop below
// walks every register the request touches, so detecting a write to one of
// the three control addresses needs no raw-frame inspection: it falls
// directly out of (req.Addr+i, req.IsWrite).
func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) (res []uint16, err error) {
	if req.UnitId != UnitID {
		return nil, modbus.ErrIllegalFunction
	}
	if int(req.Addr)+int(req.Quantity) > registers.BankSize {
		return nil, modbus.ErrIllegalDataAddress
	}

	res = make([]uint16, req.Quantity)
	for i := 0; i < int(req.Quantity); i++ {
		addr := req.Addr + uint16(i)
		if req.IsWrite {
			s.bank.WriteHoldingRaw(addr, req.Args[i])
			s.publishIfControlAddress(addr, req.Args[i], req.ClientAddr)
		}
		res[i] = s.bank.ReadHoldingU16(addr)
	}
	return res, nil
}

func (s *Server) publishIfControlAddress(addr, value uint16, clientAddr string) {
	var msgType string
	switch addr {
	case registers.FailsafeCurrent:
		msgType = "failsafeCurrent"
	case registers.FailsafeTimeout:
		msgType = "failsafeTimeout"
	case registers.ChargingCurrent:
		msgType = "modbusTcpCurrent"
	default:
		return
	}

	s.logger.Printf("modbustcp: %s wrote %s (addr %d) = %d", clientAddr, msgType, addr, value)
	if err := s.bus.Send(eventbus.Message{
		Type: msgType,
		Data: eventbus.ValuePayload{Value: int(value)},
	}); err != nil {
		s.logger.Printf("modbustcp: failed to publish %s: %v", msgType, err)
	}
}
