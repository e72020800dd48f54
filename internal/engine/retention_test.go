package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/infra/inmemory"
)

type fakeArchiver struct {
	archived []string
	failIDs  map[string]bool
}

func (f *fakeArchiver) ArchiveReport(ctx context.Context, report *domain.SummaryReport) error {
	if f.failIDs[report.ID] {
		return errors.New("bucket unavailable")
	}
	f.archived = append(f.archived, report.ID)
	return nil
}

func TestRetentionRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	records := inmemory.NewRecordStore()
	for _, rec := range []*domain.TransferRecord{
		{ID: "old", CreatedAt: now.AddDate(-3, 0, 0)},
		{ID: "recent", CreatedAt: now.AddDate(0, -1, 0)},
	} {
		if err := records.SaveRecord(ctx, rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	reports := inmemory.NewReportStore()
	for _, rep := range []*domain.SummaryReport{
		{ID: "aged", GeneratedAt: now.AddDate(-3, 0, 0)},
		{ID: "fresh", GeneratedAt: now.AddDate(0, -1, 0)},
	} {
		if err := reports.SaveReport(ctx, rep); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	archiver := &fakeArchiver{}
	job := engine.NewRetention(records, reports, archiver, clk, zerolog.Nop(), 730)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	remaining, _ := records.QueryHistory(ctx, engine.HistoryFilter{})
	if len(remaining) != 1 || remaining[0].ID != "recent" {
		t.Errorf("remaining records = %+v, want only the recent one", remaining)
	}

	if len(archiver.archived) != 1 || archiver.archived[0] != "aged" {
		t.Errorf("archived = %v, want [aged]", archiver.archived)
	}
	left, _ := reports.ListReportsBefore(ctx, now)
	if len(left) != 1 || left[0].ID != "fresh" {
		t.Errorf("reports left = %+v, want only the fresh one", left)
	}
}

func TestRetentionKeepsReportOnArchiveFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	reports := inmemory.NewReportStore()
	if err := reports.SaveReport(ctx, &domain.SummaryReport{ID: "aged", GeneratedAt: now.AddDate(-3, 0, 0)}); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	archiver := &fakeArchiver{failIDs: map[string]bool{"aged": true}}
	job := engine.NewRetention(inmemory.NewRecordStore(), reports, archiver, clk, zerolog.Nop(), 730)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Archive failed, so the report waits for the next pass.
	left, _ := reports.ListReportsBefore(ctx, now)
	if len(left) != 1 {
		t.Errorf("reports left = %d, want the unarchived report kept", len(left))
	}
}
