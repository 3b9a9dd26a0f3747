package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/remote"
)

// EventPublisher announces completed imports. *amqp.Client implements it.
type EventPublisher interface {
	PublishUsageImported(ctx context.Context, count int, source string) error
}

// ImportService writes usage rows and publishes a usage.imported event.
type ImportService struct {
	writer    remote.UsageWriter
	publisher EventPublisher
	logger    *log.Logger
}

// NewImportService accepts a nil publisher when AMQP is not configured.
func NewImportService(writer remote.UsageWriter, publisher EventPublisher) *ImportService {
	return &ImportService{
		writer:    writer,
		publisher: publisher,
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentImport),
	}
}

// ImportCSV parses r and stores every row. Parsing is all-or-nothing. A
// failed publish is logged and does not fail the import.
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader, source string) (int, error) {
	records, err := ParseUsageCSV(r)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	n, err := s.writer.InsertUsage(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("store usage rows: %w", err)
	}

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping usage event")
		return n, nil
	}
	if err := s.publisher.PublishUsageImported(ctx, n, source); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish usage event",
			log.FieldError, err,
			log.FieldRecords, n,
			log.FieldOperation, log.OpPublish)
	}
	return n, nil
}

var csvColumns = []string{"department", "month", "monthly_usage", "emission"}

// ParseUsageCSV reads rows with a header naming department, month,
// monthly_usage and emission in any order. Months are normalized to
// core.ISOLayout in UTC; empty numeric cells become missing values.
func ParseUsageCSV(r io.Reader) ([]core.UsageRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q in header %v", name, header)
		}
	}

	var out []core.UsageRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			i := cols[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		month, err := core.NormalizeMonth(get("month"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		usage, err := parseOptionalFloat(get("monthly_usage"))
		if err != nil {
			return nil, fmt.Errorf("line %d: monthly_usage: %w", line, err)
		}
		emission, err := parseOptionalFloat(get("emission"))
		if err != nil {
			return nil, fmt.Errorf("line %d: emission: %w", line, err)
		}

		out = append(out, core.UsageRecord{
			Department:   get("department"),
			Month:        month,
			MonthlyUsage: usage,
			Emission:     emission,
		})
	}
	return out, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, fmt.Errorf("negative value %v", v)
	}
	return core.Float(v), nil
}
