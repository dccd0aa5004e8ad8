package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	appbilling "github.com/utilitybill/backend/internal/application/billing"
	"github.com/utilitybill/backend/internal/infrastructure/config"
	"github.com/utilitybill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// lastSafeRunDay is the latest day every month has.
const lastSafeRunDay = 28

// BulkBiller is the part of the billing service the scheduler drives.
type BulkBiller interface {
	CreateBulk(ctx context.Context, filter appbilling.BulkFilter, dryRun bool) (*appbilling.BulkResult, error)
}

// ReportArchive stores run reports. S3ReportArchive implements it.
type ReportArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// RunReport is the archived record of one bulk billing run
type RunReport struct {
	PeriodStart time.Time                `json:"period_start"`
	PeriodEnd   time.Time                `json:"period_end"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
	Succeeded   int                      `json:"succeeded"`
	Failed      []appbilling.BulkFailure `json:"failed"`
}

// BulkBillingScheduler bills every active meter for the previous calendar
// month once a month, on the configured day and hour.
type BulkBillingScheduler struct {
	biller        BulkBiller
	config        config.SchedulerConfig
	logger        *zap.Logger
	archive       ReportArchive
	archivePrefix string

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  bool
}

// NewBulkBillingScheduler validates cfg and builds a stopped scheduler.
func NewBulkBillingScheduler(biller BulkBiller, cfg config.SchedulerConfig, logger *zap.Logger) (*BulkBillingScheduler, error) {
	if cfg.RunDay < 1 || cfg.RunDay > lastSafeRunDay {
		return nil, fmt.Errorf("%w: run day %d outside 1..%d", ErrInvalidConfig, cfg.RunDay, lastSafeRunDay)
	}
	if cfg.RunHour < 0 || cfg.RunHour > 23 {
		return nil, fmt.Errorf("%w: run hour %d outside 0..23", ErrInvalidConfig, cfg.RunHour)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Hour
	}
	return &BulkBillingScheduler{
		biller: biller,
		config: cfg,
		logger: logger.With(zap.String("component", "bulk_billing_scheduler")),
		now:    time.Now,
		after:  time.After,
	}, nil
}

// SetReportArchive makes every finished run write a JSON report under
// prefix/YYYY-MM/. Archive failures are logged and do not fail the run.
func (s *BulkBillingScheduler) SetReportArchive(archive ReportArchive, prefix string) {
	s.archive = archive
	s.archivePrefix = prefix
}

// Start launches the monthly loop. A disabled scheduler stays idle.
func (s *BulkBillingScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Bulk billing scheduler is disabled")
		return nil
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runMonthly(ctx)

	s.logger.Info("Bulk billing scheduler started",
		zap.Int("run_day", s.config.RunDay),
		zap.Int("run_hour", s.config.RunHour),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the loop and any run in progress, then waits for them.
func (s *BulkBillingScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Bulk billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Bulk billing scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *BulkBillingScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow bills the month before asOf synchronously. It refuses to overlap
// another run so a meter is never billed twice by the scheduler itself.
func (s *BulkBillingScheduler) RunNow(ctx context.Context, asOf time.Time) (*appbilling.BulkResult, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil, ErrSchedulerNotRunning
	}
	s.mu.Unlock()
	return s.execute(ctx, asOf)
}

func (s *BulkBillingScheduler) runMonthly(ctx context.Context) {
	defer s.wg.Done()

	for {
		nextRun := NextRun(s.now(), s.config.RunDay, s.config.RunHour)
		delay := nextRun.Sub(s.now())

		s.logger.Info("Monthly bulk billing scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return
		case <-s.after(delay):
			if _, err := s.execute(ctx, nextRun); err != nil {
				s.logger.Error("Scheduled bulk billing failed", zap.Error(err))
			}
		}
	}
}

func (s *BulkBillingScheduler) execute(ctx context.Context, asOf time.Time) (*appbilling.BulkResult, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	start, end := PreviousMonth(asOf)
	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	runCtx, span := telemetry.StartSpan(runCtx, "billing.bulk_run",
		telemetry.WithAttribute(telemetry.SpanAttrPeriod, start.Format("2006-01")),
	)
	defer span.End()

	s.logger.Info("Starting monthly bulk billing",
		zap.Time("period_start", start),
		zap.Time("period_end", end),
	)

	began := s.now()
	result, err := s.biller.CreateBulk(runCtx, appbilling.BulkFilter{PeriodStart: start, PeriodEnd: end}, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("bulk billing for %s: %w", start.Format("2006-01"), err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSucceeded, len(result.Succeeded),
		telemetry.SpanAttrFailed, len(result.Failed),
	)
	finished := s.now()
	s.logger.Info("Monthly bulk billing completed",
		zap.Duration("duration", finished.Sub(began)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)

	s.archiveReport(ctx, RunReport{
		PeriodStart: start,
		PeriodEnd:   end,
		StartedAt:   began,
		FinishedAt:  finished,
		Succeeded:   len(result.Succeeded),
		Failed:      result.Failed,
	})
	return result, nil
}

func (s *BulkBillingScheduler) archiveReport(ctx context.Context, report RunReport) {
	if s.archive == nil {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.Error("Failed to encode bulk run report", zap.Error(err))
		return
	}
	key := ReportKey(s.archivePrefix, report.PeriodStart, report.StartedAt)
	if err := s.archive.Put(context.WithoutCancel(ctx), key, data, "application/json"); err != nil {
		s.logger.Error("Failed to archive bulk run report", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Info("Bulk run report archived", zap.String("key", key))
}

// ReportKey names the object a run report is stored under
func ReportKey(prefix string, periodStart, startedAt time.Time) string {
	return path.Join(prefix, periodStart.Format("2006-01"), startedAt.UTC().Format("20060102T150405Z")+".json")
}

// NextRun returns the first runDay/runHour instant strictly after now, in
// now's location.
func NextRun(now time.Time, runDay, runHour int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), runDay, runHour, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate
}

// PreviousMonth returns the first and last calendar day of the month
// before asOf.
func PreviousMonth(asOf time.Time) (time.Time, time.Time) {
	firstOfThis := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
	return firstOfThis.AddDate(0, -1, 0), firstOfThis.AddDate(0, 0, -1)
}
