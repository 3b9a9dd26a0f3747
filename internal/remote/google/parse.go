package google

import (
	"fmt"
	"strconv"
	"strings"

	"carbontrack/internal/core"
)

// parseUsage converts a values matrix into usage records. The first row
// must name the columns; month is required, the other columns are optional.
// Months are normalized to core.ISOLayout; rows with a missing or
// unparseable month are skipped and counted.
func parseUsage(values [][]any) ([]core.UsageRecord, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	colMonth := indexOf(headers, "month")
	if colMonth == -1 {
		return nil, 0, fmt.Errorf("unexpected usage header: missing month; got headers=%v", headers)
	}
	colDept := indexOf(headers, "department")
	colUsage := indexOf(headers, "monthly_usage")
	colEmission := indexOf(headers, "emission")

	var (
		out     []core.UsageRecord
		skipped int
	)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		month := strings.TrimSpace(safeGet(row, colMonth))
		if month == "" {
			if !blank(row) {
				skipped++
			}
			continue
		}
		month, err := core.NormalizeMonth(month)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, core.UsageRecord{
			Department:   strings.TrimSpace(safeGet(row, colDept)),
			Month:        month,
			MonthlyUsage: parseNumber(safeGet(row, colUsage)),
			Emission:     parseNumber(safeGet(row, colEmission)),
		})
	}
	return out, skipped, nil
}

// parseNumber returns nil for empty or unparseable cells. Thousands
// separators are ignored.
func parseNumber(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return core.Float(v)
}

func toStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func safeGet(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
