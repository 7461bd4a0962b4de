package rpc

import (
	"context"
	"encoding/json"

	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/state"
)

// StatusProvider supplies get_status fields beyond what state.Store tracks.
type StatusProvider interface {
	UptimeSeconds() int64
	Connected() bool
}

// ProjectSwitcher enqueues a C9 switch request.
type ProjectSwitcher interface {
	SwitchAsync(project string)
}

// ConfigReloader triggers a hot reload of classification/rules.
type ConfigReloader interface {
	Reload() error
}

// RegisterDaemonMethods wires the window-project daemon's RPC surface
// (status, window/workspace queries, project switching, config reload)
// onto s.
func RegisterDaemonMethods(s *Server, store *state.Store, ring *eventring.Ring, status StatusProvider, switcher ProjectSwitcher, reloader ConfigReloader, projectDirectory func(string) (model.ProjectConfig, bool)) {
	s.Register("get_status", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		stats := store.GetStats()
		current, _ := store.ActiveProject()
		return map[string]interface{}{
			"status":          "ok",
			"connected":       status.Connected(),
			"uptime_seconds":  status.UptimeSeconds(),
			"active_project":  current,
			"window_count":    stats.WindowCount,
			"workspace_count": stats.WorkspaceCount,
			"event_count":     stats.EventCount,
			"error_count":     stats.ErrorCount,
		}, nil
	})

	s.Register("get_active_project", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		current, _ := store.ActiveProject()
		return map[string]interface{}{
			"project_name": current,
			"is_global":    current == "",
		}, nil
	})

	s.Register("get_windows", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Project string `json:"project"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
			}
		}
		var windows []model.WindowRecord
		if req.Project != "" {
			windows = store.GetWindowsByProject(req.Project)
		} else {
			windows = store.AllWindows()
		}
		return windows, nil
	})

	s.Register("switch_project", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		switcher.SwitchAsync(req.Name)
		return map[string]interface{}{"enqueued": true}, nil
	})

	s.Register("get_events", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Limit     int    `json:"limit"`
			EventType string `json:"event_type"`
			SinceID   int64  `json:"since_id"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
			}
		}
		if req.Limit <= 0 {
			req.Limit = 100
		}
		return ring.Query(req.Limit, req.EventType, req.SinceID), nil
	})

	s.Register("subscribe_events", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Enable bool `json:"enable"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		s.SetSubscribed(clientID, req.Enable)
		return map[string]interface{}{"subscribed": req.Enable}, nil
	})

	s.Register("list_monitors", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		clients := s.ListClients()
		out := make([]map[string]interface{}, 0, len(clients))
		for _, c := range clients {
			out = append(out, map[string]interface{}{
				"id":           c.ID,
				"remote_addr":  c.RemoteAddr,
				"connected_at": c.ConnectedAt,
				"subscribed":   c.Subscribed,
			})
		}
		return out, nil
	})

	s.Register("reload_config", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		if err := reloader.Reload(); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return map[string]interface{}{"reloaded": true}, nil
	})

	s.Register("get_projects", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Names []string `json:"names"`
		}
		if len(params) > 0 {
			_ = json.Unmarshal(params, &req)
		}
		out := make([]map[string]interface{}, 0, len(req.Names))
		for _, name := range req.Names {
			cfg, ok := projectDirectory(name)
			if !ok {
				continue
			}
			windows := store.GetWindowsByProject(name)
			out = append(out, map[string]interface{}{
				"name":         cfg.Name,
				"display_name": cfg.DisplayName,
				"directory":    cfg.Directory,
				"window_count": len(windows),
			})
		}
		return out, nil
	})
}

// RegisterTreeMonMethods wires the tree-diff daemon's RPC surface (ping,
// query_events, get_event, get_statistics, get_daemon_status) onto s.
func RegisterTreeMonMethods(s *Server, ring *eventring.Ring, status StatusProvider) {
	s.Register("ping", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		return map[string]interface{}{"pong": true}, nil
	})

	s.Register("query_events", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			Limit     int    `json:"limit"`
			EventType string `json:"event_type"`
			SinceID   int64  `json:"since_id"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
			}
		}
		if req.Limit <= 0 {
			req.Limit = 100
		}
		return ring.Query(req.Limit, req.EventType, req.SinceID), nil
	})

	s.Register("get_event", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req struct {
			EventID int64 `json:"event_id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		entries := ring.Query(0, "", req.EventID-1)
		for _, e := range entries {
			if e.EventID == req.EventID {
				return e, nil
			}
		}
		return nil, &Error{Code: CodeInvalidParams, Message: "event not found"}
	})

	s.Register("get_statistics", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		return ring.Stats(), nil
	})

	s.Register("get_daemon_status", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		return map[string]interface{}{
			"connected":      status.Connected(),
			"uptime_seconds": status.UptimeSeconds(),
		}, nil
	})
}
