package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/internal/crawler"
	"sjsage522/teetimeworker/logger"
	apperrors "sjsage522/teetimeworker/pkg/errors"
	"sjsage522/teetimeworker/services/notifier"
	"sjsage522/teetimeworker/services/publisher"

	"github.com/google/uuid"
)

// ErrCycleInProgress is returned when a cycle is requested while another one is still running
var ErrCycleInProgress = errors.New("check cycle already in progress")

// State is the phase of the check cycle
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateFiltering  State = "filtering"
	StateNotifying  State = "notifying"
	StateSkipping   State = "skipping"
)

// reportKey is the stream field the published report is stored under
const reportKey = "b64_report"

// Options controls the parts of a cycle that are not part of the run context
type Options struct {
	SiteName   string
	BookingURL string
	// DetailFetch enables the per-date drill-down for time slots
	DetailFetch bool
}

// Worker runs availability check cycles
type Worker struct {
	ctx       context.Context
	fetcher   crawler.Fetcher
	extractor *crawler.Extractor
	notifier  notifier.Notifier
	publisher publisher.Publisher
	logger    helpers.LoggerInterface
	rc        crawler.RunContext
	opts      Options
	log       *logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	newID func() string

	running atomic.Bool
	mu      sync.Mutex
	state   State
}

// NewWorker creates a new worker. pub may be nil when no report stream is configured.
func NewWorker(
	ctx context.Context,
	fetcher crawler.Fetcher,
	extractor *crawler.Extractor,
	n notifier.Notifier,
	pub publisher.Publisher,
	appLogger helpers.LoggerInterface,
	rc crawler.RunContext,
	opts Options,
) *Worker {
	return &Worker{
		ctx:       ctx,
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  n,
		publisher: pub,
		logger:    appLogger,
		rc:        rc,
		opts:      opts,
		log:       logger.ForWorker(),
		now:       time.Now,
		after:     time.After,
		newID:     uuid.NewString,
		state:     StateIdle,
	}
}

// State returns the current phase
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(cycleID string, s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()

	w.log.Debug().
		Str("cycle_id", cycleID).
		Str("from", string(prev)).
		Str("to", string(s)).
		Msg("state transition")
}

// Start runs a cycle immediately, then waits the full interval after each completed cycle
// until the context is cancelled
func (w *Worker) Start() {
	w.log.Info().
		Str("target", w.rc.String()).
		Dur("interval", w.rc.Interval).
		Str("fetcher", w.fetcher.GetName()).
		Msg("스케줄러 시작")

	for {
		if w.ctx.Err() != nil {
			return
		}

		start := w.now()
		_, _ = w.RunCycle(w.ctx)
		w.logger.LogInfo("확인 소요 시간: %s", w.now().Sub(start))

		w.log.Info().
			Time("next_run", w.now().Add(w.rc.Interval)).
			Msg("다음 확인 예약")

		select {
		case <-w.ctx.Done():
			w.log.Info().Msg("스케줄러 종료")
			return
		case <-w.after(w.rc.Interval):
		}
	}
}

// RunOnce runs a single cycle
func (w *Worker) RunOnce() (*crawler.AvailabilityReport, error) {
	return w.RunCycle(w.ctx)
}

// RunCycle fetches the calendar, extracts and filters the available dates and notifies
// when the target month has any. Fetch and extraction failures abort the cycle;
// notification and publishing failures are only logged.
func (w *Worker) RunCycle(ctx context.Context) (*crawler.AvailabilityReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer w.running.Store(false)

	cycleID := w.newID()
	rc := w.rc
	ctx = logger.ContextWithCycle(ctx, cycleID)
	log := w.log.WithContext(ctx)
	defer w.setState(cycleID, StateIdle)

	log.Info().Str("target", rc.String()).Msg("예약 확인 시작")

	w.setState(cycleID, StateFetching)
	body, err := w.fetcher.FetchCalendar(ctx, rc)
	if err != nil {
		w.logger.LogError(w.fetcher.GetName(), err)
		return nil, err
	}

	w.setState(cycleID, StateExtracting)
	found, err := w.extractor.ExtractDates(body, rc)
	if err != nil {
		w.logger.LogError("extractor", err)
		return nil, err
	}

	var dates []crawler.AvailableDate
	var slots map[crawler.AvailableDate][]crawler.TimeSlot
	if w.opts.DetailFetch {
		dates, slots = w.extractor.ConfirmSlots(ctx, w.fetcher, rc, found)
	} else {
		dates = make([]crawler.AvailableDate, 0, len(found))
		for _, f := range found {
			dates = append(dates, f.Date)
		}
	}

	w.setState(cycleID, StateFiltering)
	report := &crawler.AvailabilityReport{
		CycleID:    cycleID,
		RunContext: rc,
		Dates:      dates,
		Target:     crawler.FilterByMonth(dates, rc.Year, rc.Month),
		Slots:      slots,
		CheckedAt:  w.now(),
	}
	log.Info().
		Int("found", len(found)).
		Int("confirmed", len(report.Dates)).
		Int("target", len(report.Target)).
		Msg("예약 가능 날짜 집계")

	w.publish(ctx, report)

	if len(report.Target) == 0 {
		w.setState(cycleID, StateSkipping)
		log.Info().Str("target", rc.String()).Msg("예약 가능한 날짜가 없습니다")
		return report, nil
	}

	w.setState(cycleID, StateNotifying)
	w.notify(ctx, report)
	return report, nil
}

func (w *Worker) notify(ctx context.Context, report *crawler.AvailabilityReport) {
	text := notifier.FormatReport(*report, w.opts.SiteName, w.opts.BookingURL)

	err := w.notifier.Send(ctx, text)
	if err == nil {
		return
	}

	if apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
		// Keep the result observable in the process output
		w.log.WithContext(ctx).WithError(err).Warn().Str("notifier", w.notifier.GetType()).Msg("알림 설정 오류, 메시지 전송 생략")
		w.logger.LogInfo("알림 메시지:\n%s", text)
		return
	}
	w.logger.LogError(w.notifier.GetType(), err)
}

func (w *Worker) publish(ctx context.Context, report *crawler.AvailabilityReport) {
	if w.publisher == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		w.logger.LogError("publisher", apperrors.NewPublisher("worker", "report encoding failed", err))
		return
	}
	if err := w.publisher.Publish(ctx, reportKey, data); err != nil {
		w.logger.LogError("publisher", err)
		return
	}
	if err := w.publisher.TrimStreams(ctx); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}
}
