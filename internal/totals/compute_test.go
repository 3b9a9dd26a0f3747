package totals

import (
	"testing"
	"time"

	"carbontrack/internal/core"
)

var now2025 = time.Date(2025, time.June, 10, 9, 30, 0, 0, time.UTC)

func rec(month string, emission, usage float64) core.UsageRecord {
	return core.UsageRecord{Month: month, Emission: core.Float(emission), MonthlyUsage: core.Float(usage)}
}

func TestComputeAllSumsEverything(t *testing.T) {
	records := []core.UsageRecord{
		rec("2025-03-15T00:00:00Z", 10, 100),
		rec("2025-02-10T00:00:00Z", 5, 50),
		rec("2019-07-01T00:00:00Z", 1.5, 3),
	}
	got := Compute(core.AllMonths, records, now2025)
	want := core.TotalsSummary{Emissions: 16.5, Electricity: 153, EmissionsChange: 16.5, ElectricityChange: 153}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeMarchScenario(t *testing.T) {
	records := []core.UsageRecord{
		rec("2025-03-15T00:00:00Z", 10, 100),
		rec("2025-02-10T00:00:00Z", 5, 50),
	}
	got := Compute("March", records, now2025)
	want := core.TotalsSummary{Emissions: 10, Electricity: 100, EmissionsChange: 5, ElectricityChange: 50}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeEmptyMonthIsZero(t *testing.T) {
	records := []core.UsageRecord{rec("2025-03-15T00:00:00Z", 10, 100)}
	got := Compute("August", records, now2025)
	if got != (core.TotalsSummary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}

func TestComputeChangeWithZeroPrior(t *testing.T) {
	records := []core.UsageRecord{rec("2025-05-02T00:00:00Z", 4, 40)}
	got := Compute("May", records, now2025)
	if got.EmissionsChange != 4 || got.ElectricityChange != 40 {
		t.Fatalf("change should equal current when prior is 0: %+v", got)
	}
}

func TestComputeNegativeChange(t *testing.T) {
	records := []core.UsageRecord{
		rec("2025-05-02T00:00:00Z", 4, 40),
		rec("2025-04-20T00:00:00Z", 6, 70),
	}
	got := Compute("May", records, now2025)
	if got.EmissionsChange != -2 || got.ElectricityChange != -30 {
		t.Fatalf("unexpected change: %+v", got)
	}
}

func TestComputeRangeBoundaries(t *testing.T) {
	records := []core.UsageRecord{
		rec("2025-03-01T00:00:00Z", 1, 1),     // first instant, included
		rec("2025-03-31T23:59:59Z", 2, 2),     // last second, included
		rec("2025-04-01T00:00:00Z", 100, 100), // next month start, excluded
		rec("2024-03-15T00:00:00Z", 50, 50),   // other year, excluded
	}
	got := Compute("March", records, now2025)
	if got.Emissions != 3 || got.Electricity != 3 {
		t.Fatalf("unexpected sums: %+v", got)
	}
}

func TestComputeJanuaryUsesDecemberOfSameYear(t *testing.T) {
	records := []core.UsageRecord{
		rec("2025-01-05T00:00:00Z", 3, 30),
		rec("2025-12-20T00:00:00Z", 7, 70), // same-year December counts as prior
		rec("2024-12-20T00:00:00Z", 9, 90), // previous-year December does not
	}
	got := Compute("January", records, now2025)
	want := core.TotalsSummary{Emissions: 3, Electricity: 30, EmissionsChange: -4, ElectricityChange: -40}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPeriodsUseYearOfNowsLocation(t *testing.T) {
	// 00:30 on New Year's Day in UTC+2 is still 2024 in UTC.
	local := time.Date(2025, time.January, 1, 0, 30, 0, 0, time.FixedZone("EET", 2*60*60))
	current, _, ok := Periods("March", local)
	if !ok {
		t.Fatal("March should be bounded")
	}
	if !current.Contains("2025-03-15T00:00:00.000Z") || current.Contains("2024-03-15T00:00:00.000Z") {
		t.Fatalf("current period %+v is not March 2025", current)
	}
}

func TestComputeMissingFieldsCountAsZero(t *testing.T) {
	records := []core.UsageRecord{
		{Month: "2025-03-10T00:00:00Z", Emission: core.Float(2)},
		{Month: "2025-03-11T00:00:00Z", MonthlyUsage: core.Float(20)},
		{Month: "2025-03-12T00:00:00Z"},
	}
	got := Compute("March", records, now2025)
	if got.Emissions != 2 || got.Electricity != 20 {
		t.Fatalf("unexpected sums: %+v", got)
	}
}

func TestComputeFromSetsMatchesCompute(t *testing.T) {
	cur := []core.UsageRecord{rec("2025-03-15T00:00:00Z", 10, 100)}
	prior := []core.UsageRecord{rec("2025-02-10T00:00:00Z", 5, 50)}
	got := ComputeFromSets(cur, prior)
	want := Compute("March", append(append([]core.UsageRecord{}, cur...), prior...), now2025)
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestByDepartment(t *testing.T) {
	records := []core.UsageRecord{
		{Department: "IT", Month: "2025-03-01T00:00:00Z", Emission: core.Float(5), MonthlyUsage: core.Float(50)},
		{Department: "HR", Month: "2025-03-01T00:00:00Z", Emission: core.Float(8), MonthlyUsage: core.Float(10)},
		{Department: "IT", Month: "2025-03-02T00:00:00Z", Emission: core.Float(4), MonthlyUsage: core.Float(5)},
		{Department: "", Month: "2025-03-02T00:00:00Z", MonthlyUsage: core.Float(1)},
	}
	got := ByDepartment(records)
	if len(got) != 3 {
		t.Fatalf("expected 3 departments, got %d: %+v", len(got), got)
	}
	if got[0].Department != "IT" || got[0].Emission != 9 || got[0].Electricity != 55 {
		t.Fatalf("unexpected first department: %+v", got[0])
	}
	if got[1].Department != "HR" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[2].Department != core.UnassignedDepartment || got[2].Electricity != 1 {
		t.Fatalf("unexpected unassigned group: %+v", got[2])
	}
}

func TestPeriodsAll(t *testing.T) {
	if _, _, ok := Periods(core.AllMonths, now2025); ok {
		t.Fatalf("All must not have a bounded period")
	}
}
