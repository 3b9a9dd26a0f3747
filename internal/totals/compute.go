// Package totals computes the dashboard's KPI figures from usage records.
//
// Compute and ByDepartment are pure: they never fetch, and identical inputs
// always give identical outputs. Aggregator feeds them from a record source
// and memoizes summaries per snapshot.
package totals

import (
	"sort"
	"time"

	"carbontrack/internal/core"
)

// Periods returns the current and prior periods for sel in the year of now,
// taken in now's own location.
// ok is false for the All selector, which has no bounded period.
func Periods(sel core.MonthSelector, now time.Time) (current, prior core.Period, ok bool) {
	m, ok := sel.Month()
	if !ok {
		return core.Period{}, core.Period{}, false
	}
	year := now.Year()
	return core.MonthPeriod(year, m), core.MonthPeriod(year, core.PreviousMonth(m)), true
}

// Compute produces the TotalsSummary for sel over the full record set.
// For All the prior set is empty, so each change equals its sum.
func Compute(sel core.MonthSelector, records []core.UsageRecord, now time.Time) core.TotalsSummary {
	var cur, prev accumulator
	current, prior, bounded := Periods(sel, now)
	for _, r := range records {
		if !bounded {
			cur.add(r)
			continue
		}
		if current.Contains(r.Month) {
			cur.add(r)
		}
		if prior.Contains(r.Month) {
			prev.add(r)
		}
	}
	return summarize(cur, prev)
}

// ComputeFromSets builds a summary from already-filtered current and prior sets.
func ComputeFromSets(current, prior []core.UsageRecord) core.TotalsSummary {
	var cur, prev accumulator
	for _, r := range current {
		cur.add(r)
	}
	for _, r := range prior {
		prev.add(r)
	}
	return summarize(cur, prev)
}

func summarize(cur, prev accumulator) core.TotalsSummary {
	return core.TotalsSummary{
		Emissions:         cur.get(core.Emission),
		Electricity:       cur.get(core.MonthlyUsage),
		EmissionsChange:   cur.get(core.Emission) - prev.get(core.Emission),
		ElectricityChange: cur.get(core.MonthlyUsage) - prev.get(core.MonthlyUsage),
	}
}

// ByDepartment groups records by department and sums both fields. Results
// are ordered by emission descending, then department name.
func ByDepartment(records []core.UsageRecord) []core.DepartmentTotal {
	byName := make(map[string]*accumulator)
	for _, r := range records {
		name := r.DepartmentName()
		acc, ok := byName[name]
		if !ok {
			acc = &accumulator{}
			byName[name] = acc
		}
		acc.add(r)
	}

	out := make([]core.DepartmentTotal, 0, len(byName))
	for name, acc := range byName {
		out = append(out, core.DepartmentTotal{
			Department:  name,
			Emission:    acc.get(core.Emission),
			Electricity: acc.get(core.MonthlyUsage),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Emission != out[j].Emission {
			return out[i].Emission > out[j].Emission
		}
		return out[i].Department < out[j].Department
	})
	return out
}

// accumulator sums each core.Field independently.
type accumulator struct {
	sums [2]float64
}

func (a *accumulator) add(r core.UsageRecord) {
	for _, f := range core.Fields {
		a.sums[f] += r.Value(f)
	}
}

func (a accumulator) get(f core.Field) float64 {
	return a.sums[f]
}
