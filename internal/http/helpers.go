package http

import (
	"html/template"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"carbontrack/internal/core"
)

const (
	unitEmission    = "kg CO₂"
	unitElectricity = "kWh"
)

// Change is a rendered month-over-month delta.
type Change struct {
	Text  string
	Class string
}

// parseMonthSelector reads ?month=. Unknown names fall back to All.
func parseMonthSelector(r *http.Request) core.MonthSelector {
	sel, err := core.ParseMonthSelector(r.URL.Query().Get("month"))
	if err != nil {
		return core.AllMonths
	}
	return sel
}

// formatAmount renders v with two decimals and thousands separators.
func formatAmount(v float64) string {
	if v == 0 {
		v = 0 // normalize -0
	}
	return humanize.FormatFloat("#,###.##", v)
}

// formatChange renders a delta as "+X.XX unit" (class up) for v >= 0 and
// "-X.XX unit" (class down) otherwise.
func formatChange(v float64, unit string) Change {
	if v >= 0 {
		return Change{Text: "+" + formatAmount(v) + " " + unit, Class: "up"}
	}
	return Change{Text: "-" + formatAmount(math.Abs(v)) + " " + unit, Class: "down"}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": formatAmount,
		"emissionChange": func(v float64) Change {
			return formatChange(v, unitEmission)
		},
		"electricityChange": func(v float64) Change {
			return formatChange(v, unitElectricity)
		},
		"unitEmission":    func() string { return unitEmission },
		"unitElectricity": func() string { return unitElectricity },
		"months": func() []string {
			return append([]string{string(core.AllMonths)}, core.MonthNames...)
		},
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return humanize.Time(t)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04")
		},
	}
}
