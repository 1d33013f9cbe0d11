// Package httpapi implements the embedded HTTP control surface: a stdlib
// net/http.ServeMux exposing uptime, network, and message read endpoints
// plus the two POST endpoints that turn a validated request into scheduled
// work. The choice of plain ServeMux over a router or framework is
// recorded in DESIGN.md.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/metrics"
	"github.com/srcful-labs/energygateway/pkg/gateway/netinfo"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// Server holds everything the handlers need to validate a request and,
// on success, build the task it describes.
type Server struct {
	bb        *blackboard.BlackBoard
	queue     *Queue
	se        secureelement.SecureElement
	client    transport.Doer
	uploadURL string
	logger    *slog.Logger

	mux *http.ServeMux
}

// New constructs a Server. logger may be nil.
func New(bb *blackboard.BlackBoard, queue *Queue, se secureelement.SecureElement, client transport.Doer, uploadURL string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{bb: bb, queue: queue, se: se, client: client, uploadURL: uploadURL, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/uptime", s.handleUptime)
	mux.HandleFunc("GET /api/network/address", s.handleNetworkAddress)
	mux.HandleFunc("GET /api/network/connections", s.handleNetworkConnections)
	mux.HandleFunc("GET /api/message", s.handleMessage)
	mux.HandleFunc("POST /api/device", s.handleDevice)
	mux.HandleFunc("POST /api/modbus", s.handleModbus)
	mux.Handle("GET /metrics", metrics.Handler())
	s.mux = mux

	return s
}

// Handler returns the http.Handler to mount on a *http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

// Queue exposes the outbound work buffer so app wiring can hand it to the
// webdispatch task.
func (s *Server) Queue() *Queue { return s.queue }

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"msek": s.bb.TimeMs() - s.bb.StartTime()})
}

func (s *Server) handleNetworkAddress(w http.ResponseWriter, r *http.Request) {
	if netinfo.IsConnected() {
		writeJSON(w, http.StatusOK, map[string]any{"ip": netinfo.GetIPAddress(), "port": s.bb.RestPort()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ip": "no network", "port": 0})
}

func (s *Server) handleNetworkConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"connections": netinfo.ConnectionConfigs()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}
