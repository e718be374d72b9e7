// Package status is a read-only HTTP+WebSocket monitoring endpoint layered
// on top of the Modbus personality (not part of the Modbus wire protocol
// itself, and it accepts no control writes): health/status JSON endpoints, a
// periodic websocket status broadcaster, and a sync.Map of connected
// clients, with a "port<=0 disables the server" convention.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/evse-modbus/registers"
	"github.com/devskill-org/evse-modbus/state"
)

// Server serves /health, /status and /ws against a live Model/Bank pair.
type Server struct {
	model *state.Model
	bank  *registers.Bank

	port      int
	startTime time.Time
	server    *http.Server
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	Uptime          string `json:"uptime"`
	ChargePointID   string `json:"charge_point_id"`
	StationStatus   string `json:"station_status"`
	ConnectorStatus string `json:"connector_status"`
}

// New constructs a Server. If port<=0, it returns nil and the caller's
// Start/Stop calls become no-ops, a disabled-server convention that lets
// callers skip a nil check.
func New(model *state.Model, bank *registers.Bank, port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		model:     model,
		bank:      bank,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/ws", s.wsHandler)

	return s
}

// Start begins serving. A nil Server (disabled) is a no-op.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go s.broadcastLoop()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("status: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server and any open websockets down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	station := s.model.Station.Snapshot()
	point := s.model.Point.Snapshot()

	resp := HealthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Uptime:          formatUptime(time.Since(s.startTime)),
		ChargePointID:   station.ChargePointID,
		StationStatus:   fmt.Sprintf("%d", station.Status),
		ConnectorStatus: fmt.Sprintf("%d", point.Status),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.buildSnapshot()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("status: websocket upgrade error: %v\n", err)
		return
	}
	s.clients.Store(conn, true)

	if data, err := json.Marshal(s.buildSnapshot()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			s.clients.Range(func(key, _ any) bool { hasClients = true; return false })
			if !hasClients {
				continue
			}
			data, err := json.Marshal(s.buildSnapshot())
			if err != nil {
				continue
			}
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// registerSnapshot is the /status and /ws payload: a point-in-time view of
// the domain model and the register bank's control-register holding cells.
type registerSnapshot struct {
	Timestamp       string                 `json:"timestamp"`
	Station         state.Station          `json:"station"`
	ChargePoint     state.ChargePoint      `json:"charge_point"`
	Session         state.ChargeSession    `json:"session"`
	FailsafeCurrent uint16                 `json:"failsafe_current"`
	FailsafeTimeout uint16                 `json:"failsafe_timeout"`
	ChargingCurrent uint16                 `json:"charging_current"`
	AliveRegister   uint16                 `json:"alive_register"`
}

func (s *Server) buildSnapshot() registerSnapshot {
	return registerSnapshot{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Station:         s.model.Station.Snapshot(),
		ChargePoint:     s.model.Point.Snapshot(),
		Session:         s.model.Session.Snapshot(),
		FailsafeCurrent: s.bank.ReadHoldingU16(registers.FailsafeCurrent),
		FailsafeTimeout: s.bank.ReadHoldingU16(registers.FailsafeTimeout),
		ChargingCurrent: s.bank.ReadHoldingU16(registers.ChargingCurrent),
		AliveRegister:   s.bank.ReadHoldingU16(registers.AliveRegister),
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
