package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/totals"
)

// DashboardState is everything the dashboard templates render. It is built
// per request; nothing about the selection lives on the server.
type DashboardState struct {
	Month  core.MonthSelector
	Theme  core.Theme
	Totals core.TotalsSummary
	Stale  bool
	// Unavailable is set when no usage data has loaded yet.
	Unavailable bool
	User        core.User
	Departments []core.DepartmentTotal
	// DepartmentsErr is set when the breakdown could not be loaded.
	DepartmentsErr bool
}

const dataTimeout = 7 * time.Second

// loadTotals wraps the aggregator and counts results served without fresh data.
func (s *Server) loadTotals(ctx context.Context, sel core.MonthSelector) totals.Result {
	res := s.aggregator.Totals(ctx, sel)
	if res.Stale || res.Unavailable {
		s.metrics.StaleTotals()
	}
	return res
}

func (s *Server) newState(r *http.Request) DashboardState {
	user, _ := currentUser(r.Context())
	return DashboardState{
		Month: parseMonthSelector(r),
		Theme: themeFromRequest(r),
		User:  user,
	}
}

// handleDashboard renders the full page, loading totals and the department
// breakdown concurrently.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dataTimeout)
	defer cancel()

	state := s.newState(r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := s.loadTotals(gctx, state.Month)
		state.Totals, state.Stale, state.Unavailable = res.Summary, res.Stale, res.Unavailable
		return nil
	})
	g.Go(func() error {
		depts, err := s.aggregator.Departments(gctx, state.Month)
		if err != nil {
			return err
		}
		state.Departments = depts
		return nil
	})
	if err := g.Wait(); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Department breakdown unavailable",
			log.FieldError, err,
			log.FieldMonth, state.Month.String())
		state.DepartmentsErr = true
	}

	s.render(w, r, http.StatusOK, "dashboard", state)
}

// handleKPIs renders the KPI cards for ?month= and tells the department
// panel to follow the new selection.
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dataTimeout)
	defer cancel()

	state := s.newState(r)
	res := s.loadTotals(ctx, state.Month)
	state.Totals, state.Stale, state.Unavailable = res.Summary, res.Stale, res.Unavailable

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerMonthChanged(state.Month.String()).
			PushURL("/?month=" + url.QueryEscape(state.Month.String())).
			ApplyHeaders(w)
	}
	s.render(w, r, http.StatusOK, "kpis", state)
}

// handleDepartments renders the department table partial.
func (s *Server) handleDepartments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dataTimeout)
	defer cancel()

	state := s.newState(r)
	depts, err := s.aggregator.Departments(ctx, state.Month)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Department breakdown unavailable",
			log.FieldError, err,
			log.FieldMonth, state.Month.String())
		state.DepartmentsErr = true
	}
	state.Departments = depts
	s.render(w, r, http.StatusOK, "departments", state)
}

type departmentsResponse struct {
	Month       string                 `json:"month"`
	Departments []core.DepartmentTotal `json:"departments"`
}

// handleDepartmentsJSON serves the breakdown as chart data.
func (s *Server) handleDepartmentsJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dataTimeout)
	defer cancel()

	sel := parseMonthSelector(r)
	w.Header().Set("Content-Type", "application/json")

	depts, err := s.aggregator.Departments(ctx, sel)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Department breakdown unavailable",
			log.FieldError, err,
			log.FieldMonth, sel.String())
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "usage data unavailable"})
		return
	}
	if depts == nil {
		depts = []core.DepartmentTotal{}
	}
	_ = json.NewEncoder(w).Encode(departmentsResponse{Month: sel.String(), Departments: depts})
}

// handleToggleTheme flips the theme cookie.
func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	next := themeFromRequest(r).Toggle()
	s.setThemeCookie(w, next)

	if isHTMX(r) {
		NewHTMXResponse().
			Trigger(EventThemeChanged, map[string]string{"theme": string(next)}).
			Refresh().
			Status(http.StatusNoContent).
			Write(w)
		return
	}
	back := "/"
	if m := r.FormValue("month"); m != "" {
		if sel, err := core.ParseMonthSelector(m); err == nil {
			back = "/?month=" + url.QueryEscape(sel.String())
		}
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}
