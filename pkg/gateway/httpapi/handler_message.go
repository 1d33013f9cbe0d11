package httpapi

import (
	"net/http"
	"strconv"
)

// handleMessage implements GET /api/message and GET /api/message?id=N:
// without an id it lists every logged message's id, with one it returns
// that single message's full detail.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		all := s.bb.Messages.All()
		ids := make([]int64, len(all))
		for i, m := range all {
			ids[i] = m.ID
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
		return
	}

	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "message " + idParam + " not found"})
		return
	}

	msg, ok := s.bb.Messages.ByID(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "message " + idParam + " not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   msg.Text,
		"type":      msg.Kind.String(),
		"timestamp": msg.Timestamp,
		"id":        msg.ID,
	})
}
