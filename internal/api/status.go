package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/devagent/internal/agent"
)

// healthCheckTimeout bounds each dependency check in /healthz.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the /healthz document.
type HealthResponse struct {
	Status        string            `json:"status"`
	DeviceUID     string            `json:"device_uid"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Address       string            `json:"address,omitempty"`
	Connectivity  agent.Snapshot    `json:"connectivity"`
	Actuator      ActuatorStatus    `json:"actuator"`
	Session       *SessionStatus    `json:"session,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// ActuatorStatus is the output section of /healthz.
type ActuatorStatus struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

// SessionStatus is the broker session section of /healthz.
type SessionStatus struct {
	ClientID     string `json:"client_id"`
	CommandTopic string `json:"command_topic"`
	Established  int    `json:"established"`
}

// handleHealth reports connectivity, actuator level and dependency health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.scheduler.Snapshot()
	healthy := snap.State == agent.SessionUp

	resp := HealthResponse{
		DeviceUID:     s.deviceUID,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Connectivity:  snap,
		Actuator: ActuatorStatus{
			Name:  s.actuator.Name(),
			Level: s.actuator.Level().String(),
		},
	}
	if s.link != nil {
		resp.Address = s.link.LocalAddr()
	}
	if s.session != nil {
		resp.Session = &SessionStatus{
			ClientID:     s.session.ClientID(),
			CommandTopic: s.session.CommandTopic(),
			Established:  s.session.Established(),
		}
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				healthy = false
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	resp.Status = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

// handleTransitions lists recent actuator transitions, newest first.
func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	transitions, err := s.history.Recent(r.Context(), s.actuator.Name(), limit)
	if err != nil {
		s.logger.Error("reading actuator history failed", "error", err)
		writeError(w, ErrCodeInternal, "failed to read actuator history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actuator":    s.actuator.Name(),
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// handleCommands lists recently journalled commands, newest first.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	commands, err := s.history.RecentCommands(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading command journal failed", "error", err)
		writeError(w, ErrCodeInternal, "failed to read command journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": commands,
		"count":    len(commands),
	})
}

// parseLimit reads the optional ?limit= query parameter. Zero means the
// journal default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, ErrCodeBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
