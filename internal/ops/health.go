package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/eldtechnologies/convosync/internal/transport"
)

const version = "0.1.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Version    string `json:"version"`
	Connection string `json:"connection"` // push channel state
	Unread     int    `json:"unread"`
	Timestamp  string `json:"timestamp"`
}

// Health handles the health check endpoint. The daemon is degraded, not
// down, while the push channel is reconnecting: the store keeps serving
// snapshots either way.
func Health(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := src.ConnectionState()

		resp := HealthResponse{
			Status:     "healthy",
			Version:    version,
			Connection: state.String(),
			Unread:     src.TotalUnread(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
		if state != transport.StateConnected {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}
