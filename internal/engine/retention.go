package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/clock"
)

// Retention retires aged audit data: summary reports are archived to
// long-term storage and deleted, and transfer records past the retention
// window are removed. Run monthly by the worker.
type Retention struct {
	records  RecordRepository
	reports  ReportStore
	archiver ReportArchiver
	clk      clock.Clock
	log      zerolog.Logger

	// RetentionDays is how long audit records are kept. Default two years.
	RetentionDays int
}

// NewRetention wires the retention job. archiver may be nil; reports are
// then deleted without archival.
func NewRetention(records RecordRepository, reports ReportStore, archiver ReportArchiver, clk clock.Clock, log zerolog.Logger, retentionDays int) *Retention {
	if retentionDays <= 0 {
		retentionDays = 730
	}
	return &Retention{
		records:       records,
		reports:       reports,
		archiver:      archiver,
		clk:           clk,
		log:           log,
		RetentionDays: retentionDays,
	}
}

// Run performs one retention pass. Archive failures keep the report in
// place for the next pass; record deletion proceeds regardless.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := r.clk.Now().AddDate(0, 0, -r.RetentionDays)

	deleted, err := r.records.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention: delete records: %w", err)
	}
	r.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Audit records retired")

	if r.reports == nil {
		return nil
	}

	reports, err := r.reports.ListReportsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention: list reports: %w", err)
	}

	archived := 0
	for _, report := range reports {
		if r.archiver != nil {
			if err := r.archiver.ArchiveReport(ctx, report); err != nil {
				r.log.Error().Err(err).Str("report_id", report.ID).Msg("Report archive failed, keeping for next pass")
				continue
			}
		}
		if err := r.reports.DeleteReport(ctx, report.ID); err != nil {
			r.log.Error().Err(err).Str("report_id", report.ID).Msg("Report delete failed")
			continue
		}
		archived++
	}

	r.log.Info().Int("archived", archived).Msg("Summary reports archived")
	return nil
}
