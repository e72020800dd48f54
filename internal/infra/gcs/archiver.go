// Package gcs archives aged summary reports to a Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// uploadTimeout bounds a single archive upload.
const uploadTimeout = 2 * time.Minute

// ReportArchiver implements engine.ReportArchiver by writing each report as
// a JSON object under reports/<year>/<id>.json.
type ReportArchiver struct {
	client *storage.Client
	bucket string
}

// NewReportArchiver creates an archiver writing to the given bucket.
func NewReportArchiver(client *storage.Client, bucket string) *ReportArchiver {
	return &ReportArchiver{client: client, bucket: bucket}
}

// ArchiveReport implements engine.ReportArchiver.
func (a *ReportArchiver) ArchiveReport(ctx context.Context, report *domain.SummaryReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("ArchiveReport: encode report %s: %w", report.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	objectName := fmt.Sprintf("reports/%d/%s.json", report.GeneratedAt.Year(), report.ID)
	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("ArchiveReport: write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ArchiveReport: finalize upload %s: %w", objectName, err)
	}
	return nil
}

var _ engine.ReportArchiver = (*ReportArchiver)(nil)
