// Package watchdog runs three independent periodic tasks: the date/time
// ticker, the session-duration/energy ticker, and the failsafe-current
// watchdog. Each follows the same shape: an optional initial delay, then a
// ticker loop selecting against context cancellation.
package watchdog

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/devskill-org/evse-modbus/eventbus"
	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

// Watchdog owns the register bank, state model and event bus handle the
// three tasks need, and the goroutines that run them.
type Watchdog struct {
	bank   *registers.Bank
	model  *state.Model
	bus    *eventbus.Endpoint
	logger *log.Logger

	wg sync.WaitGroup
}

// New constructs a Watchdog. It does not start any task until Start is called.
func New(bank *registers.Bank, model *state.Model, bus *eventbus.Endpoint, logger *log.Logger) *Watchdog {
	if logger == nil {
		logger = log.Default()
	}
	return &Watchdog{bank: bank, model: model, bus: bus, logger: logger}
}

// Start launches the date/time, session, and failsafe tasks on their own
// goroutines. It returns immediately; the tasks run until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	w.wg.Add(3)
	go w.runDateTimeTask(ctx)
	go w.runSessionTask(ctx)
	go w.runFailsafeTask(ctx)
}

// Wait blocks until all three tasks have returned (i.e. ctx was cancelled).
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// runDateTimeTask writes DATE/TIME from the wall clock once a second.
func (w *Watchdog) runDateTimeTask(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	registers.ApplyDateTime(w.bank, time.Now())
	for {
		select {
		case <-ticker.C:
			registers.ApplyDateTime(w.bank, time.Now())
		case <-ctx.Done():
			w.logger.Printf("watchdog: date/time task stopped")
			return
		}
	}
}

// runSessionTask recomputes SESSION_ENERGY/SESSION_DURATION once a second
// while a session is active.
func (w *Watchdog) runSessionTask(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	tick := func() {
		session := w.model.Session.Snapshot()
		if session.Status == state.SessionStopped {
			return
		}
		registers.ApplySessionDerived(w.bank, session, w.model.Point.TotalActiveEnergyWh(), time.Now())
	}

	tick()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			w.logger.Printf("watchdog: session task stopped")
			return
		}
	}
}

// runFailsafeTask is the ALIVE_REGISTER watchdog. Its period is
// re-derived from FAILSAFE_TIMEOUT before every sleep, since a client can
// change that holding register at any time.
func (w *Watchdog) runFailsafeTask(ctx context.Context) {
	defer w.wg.Done()

	for {
		period := failsafePeriod(w.bank.ReadHoldingU16(registers.FailsafeTimeout))
		select {
		case <-time.After(period):
			w.failsafeTick()
		case <-ctx.Done():
			w.logger.Printf("watchdog: failsafe task stopped")
			return
		}
	}
}

// failsafePeriod computes P = max(1, round(failsafeTimeout / 2)) seconds.
func failsafePeriod(failsafeTimeoutSeconds uint16) time.Duration {
	p := math.Round(float64(failsafeTimeoutSeconds) / 2)
	if p < 1 {
		p = 1
	}
	return time.Duration(p) * time.Second
}

func (w *Watchdog) failsafeTick() {
	alive := w.bank.ReadHoldingU16(registers.AliveRegister)
	failsafeCurrent := w.bank.ReadHoldingU16(registers.FailsafeCurrent)
	chargingCurrent := w.bank.ReadHoldingU16(registers.ChargingCurrent)

	if alive == 0 && failsafeCurrent != chargingCurrent {
		w.logger.Printf("watchdog: client unresponsive, forcing modbusTcpCurrent to failsafe %d", failsafeCurrent)
		err := w.bus.Send(eventbus.Message{
			Type: "modbusTcpCurrent",
			Data: eventbus.ValuePayload{Value: int(failsafeCurrent)},
		})
		if err != nil {
			w.logger.Printf("watchdog: failed to publish failsafe fallback: %v", err)
		}
	}

	w.bank.WriteRWU16(registers.AliveRegister, 0)
}
