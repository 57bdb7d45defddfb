package api

import (
	"net/http"
)

// StatusResponse reports backend reachability
type StatusResponse struct {
	Status   string          `json:"status"`
	Backends map[string]bool `json:"backends"`
}

// Status is the health endpoint
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	backends := s.health.Status(r.Context())

	status := "ok"
	code := http.StatusOK
	for _, up := range backends {
		if !up {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	render(w, r, code, StatusResponse{Status: status, Backends: backends})
}
