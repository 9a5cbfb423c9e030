package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/export"
	"github.com/noah-isme/lesson-scheduler/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	Retention time.Duration
}

// ExportResult captures a rendered export and its signed link.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders finished timetables and serves them through signed links.
type ExportService struct {
	runs           RunStore
	availabilities AvailabilityStore
	storage        fileStorage
	signer         *storage.SignedURLSigner
	csv            csvRenderer
	pdf            pdfRenderer
	logger         *zap.Logger
	cfg            ExportConfig
	now            func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(runs RunStore, availabilities AvailabilityStore, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		runs:           runs,
		availabilities: availabilities,
		storage:        files,
		signer:         signer,
		csv:            csv,
		pdf:            pdf,
		logger:         logger,
		cfg:            cfg,
		now:            time.Now,
	}
}

// Generate renders the lessons of a finished run and returns a signed link.
func (s *ExportService) Generate(ctx context.Context, runID string, format models.ExportFormat) (*ExportResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, notFoundOr(err, "solver run not found", "failed to load solver run")
	}
	if run.State != models.RunStateDone || len(run.Lessons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "solver run has no schedule to export")
	}
	dataset, err := s.buildDataset(ctx, run)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := path.Join(sanitizeFilename(run.ID), fmt.Sprintf("schedule_%s.%s", s.now().UTC().Format("20060102_150405"), format))
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Sign(storage.DownloadClaims{RunID: run.ID, Path: relPath, Format: string(format)})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Sugar().Infow("export generated", "run_id", run.ID, "format", string(format), "path", relPath)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ResolveDownload validates a token and opens the stored export.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	if _, err := s.runs.GetByID(ctx, claims.RunID); err != nil {
		return nil, notFoundOr(err, "solver run not found", "failed to load solver run")
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	contentType := "text/csv"
	if claims.Format == string(models.ExportFormatPDF) {
		contentType = "application/pdf"
	}
	return &ExportDownload{
		File:        file,
		Filename:    path.Base(claims.Path),
		ContentType: contentType,
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// Cleanup removes exports older than the retention window.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.Retention)
}

// StartCleanup purges expired exports on a cron schedule until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		deleted, err := s.Cleanup()
		if err != nil {
			s.logger.Sugar().Warnw("export cleanup failed", "error", err)
			return
		}
		if len(deleted) > 0 {
			s.logger.Sugar().Infow("expired exports removed", "count", len(deleted))
		}
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "invalid export cleanup schedule")
	}
	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return scheduler, nil
}

// buildDataset lists lessons in calendar order. Preference columns are
// filled from the availability table when it can still be loaded.
func (s *ExportService) buildDataset(ctx context.Context, run *models.SolverRun) (export.Dataset, error) {
	var table *timetable.Table
	if availability, err := s.availabilities.GetByID(ctx, run.AvailabilityID); err == nil {
		table, err = LoadTable(availability)
		if err != nil {
			s.logger.Sugar().Warnw("export without preferences", "run_id", run.ID, "error", err)
			table = nil
		}
	}

	lessons := append(models.LessonSlots(nil), run.Lessons...)
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Slot < lessons[j].Slot })

	rows := make([][]string, 0, len(lessons))
	for _, lesson := range lessons {
		pupilPref, instructorPref := "", ""
		if table != nil {
			pupilPref, instructorPref = lessonPreferences(table, lesson)
		}
		rows = append(rows, []string{
			lesson.Day,
			lesson.Start,
			lesson.Pupil,
			strconv.Itoa(lesson.Duration),
			pupilPref,
			instructorPref,
		})
	}
	title := "Lesson Schedule"
	if run.Score != nil {
		title = fmt.Sprintf("Lesson Schedule (score %d)", *run.Score)
	}
	return export.Dataset{
		Title:       title,
		Headers:     []string{"Day", "Start", "Pupil", "Minutes", "Pupil Pref", "Instructor Pref"},
		Rows:        rows,
		GroupColumn: 0,
	}, nil
}

func lessonPreferences(table *timetable.Table, lesson models.Lesson) (string, string) {
	if lesson.Slot < 0 || lesson.Slot >= table.NumSlots() {
		return "", ""
	}
	instructor := strconv.Itoa(table.Pref(timetable.InstructorIndex, lesson.Slot))
	for _, pupil := range table.Pupils() {
		if pupil.Name == lesson.Pupil {
			return strconv.Itoa(table.Pref(pupil.Index, lesson.Slot)), instructor
		}
	}
	return "", instructor
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
