package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/srcful-labs/energygateway/pkg/gateway/writetask"
)

// handleModbus implements POST /api/modbus: a missing commands field or
// no registered device is 400; a malformed command (missing/unknown type,
// write without startingAddress/values, pause without duration) is 500.
func (s *Server) handleModbus(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rawCommands, ok := body["commands"]
	if !ok {
		writeError(w, http.StatusBadRequest, "commands field is required")
		return
	}

	devices := s.bb.Devices.List()
	if len(devices) == 0 {
		writeError(w, http.StatusBadRequest, "no device registered")
		return
	}

	list, ok := rawCommands.([]any)
	if !ok {
		writeError(w, http.StatusInternalServerError, "commands must be a list")
		return
	}

	commands := make([]writetask.Command, 0, len(list))
	for _, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			writeError(w, http.StatusInternalServerError, "malformed command")
			return
		}
		cmd, err := writetask.ParseCommand(obj)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		commands = append(commands, cmd)
	}

	wt := writetask.New(s.bb.TimeMs()+100, devices[0], commands)
	s.queue.Enqueue(wt)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
