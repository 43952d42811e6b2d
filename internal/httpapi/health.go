package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HandleHealthz pings every registered dependency.
// Returns 200 when all respond, 503 otherwise.
//
// Response format:
//   - Success: {"status": "healthy", "redis": "connected", "database": "connected"}
//   - Failure: {"status": "unhealthy", "redis": "disconnected", "error": "redis: ..."}
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	response := map[string]string{"status": "healthy"}
	status := http.StatusOK
	for _, name := range names {
		if err := s.health[name].Ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.String("component", name), zap.Error(err))
			response[name] = "disconnected"
			if _, ok := response["error"]; !ok {
				response["error"] = name + ": " + err.Error()
			}
			response["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		response[name] = "connected"
	}

	s.jsonResponse(w, status, response)
}
