package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/opendevice"
)

type deviceRequest struct {
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	Type    string `json:"type"`
	Address int    `json:"address"`
}

// handleDevice implements POST /api/device: validate the connection
// fields (400 on a bad body or a missing ip/port), build the device and an
// OpenDeviceTask (construction itself cannot fail), enqueue it, and report
// 200 {"status":"ok"}.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.IP == "" || req.Port == 0 {
		writeError(w, http.StatusBadRequest, "connection field is required")
		return
	}

	dev := device.NewModbusTCP(uuid.NewString(), req.IP, req.Port, byte(req.Address), req.Type)
	ot := opendevice.New(s.bb.TimeMs()+100, s.bb, dev, s.se, s.client, s.uploadURL, s.logger)
	s.queue.Enqueue(ot)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
