package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/store"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["backend"] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	if s.stats != nil {
		st := s.stats.Stats()
		snapshot := map[string]any{
			"loaded":   st.Loaded,
			"records":  st.Records,
			"fetches":  st.Fetches,
			"failures": st.Failures,
		}
		if st.Loaded {
			snapshot["fetched_at"] = st.FetchedAt.UTC().Format(time.RFC3339)
		}
		checks["usage_snapshot"] = snapshot
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.loginLimiter.ActiveClients(),
		"rejected":       s.loginLimiter.Hits(),
	}
	checks["security"] = map[string]any{
		"suspicious_requests": s.detector.SuspiciousRequests(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

type adminView struct {
	Theme       core.Theme
	User        core.User
	Stats       store.Stats
	Departments []core.DepartmentTotal
	Users       []core.User
	Totals      core.TotalsSummary
	Stale       bool
	Unavailable bool
	Errors      []string
}

// handleAdmin renders record counts, the all-time department breakdown and
// the account list.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dataTimeout)
	defer cancel()

	user, _ := currentUser(ctx)
	view := adminView{Theme: themeFromRequest(r), User: user}

	var deptErr, usersErr error
	var g errgroup.Group
	g.Go(func() error {
		res := s.loadTotals(ctx, core.AllMonths)
		view.Totals, view.Stale, view.Unavailable = res.Summary, res.Stale, res.Unavailable
		return nil
	})
	g.Go(func() error {
		view.Departments, deptErr = s.aggregator.Departments(ctx, core.AllMonths)
		return nil
	})
	g.Go(func() error {
		view.Users, usersErr = s.auth.Users(ctx)
		return nil
	})
	_ = g.Wait()

	if deptErr != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Admin department breakdown failed", log.FieldError, deptErr)
		view.Errors = append(view.Errors, "Usage data is unavailable.")
	}
	if usersErr != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Admin user list failed", log.FieldError, usersErr)
		view.Errors = append(view.Errors, "User list is unavailable.")
	}
	if s.stats != nil {
		view.Stats = s.stats.Stats()
	}

	s.render(w, r, http.StatusOK, "admin", view)
}
