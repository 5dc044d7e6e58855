package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/ingress"
	"github.com/septivank/solarlog-reader/internal/logging"
	"github.com/septivank/solarlog-reader/internal/metrics"
	"github.com/septivank/solarlog-reader/internal/reading"
	"github.com/septivank/solarlog-reader/internal/solarlog"
	"github.com/septivank/solarlog-reader/tools/timeparser"
)

const (
	forwardTimeout        = 5 * time.Second
	staleReadingTolerance = 15 * time.Minute
)

// DeviceReader fetches the raw live data payload from the device
type DeviceReader interface {
	FetchLiveData(ctx context.Context) (solarlog.Payload, error)
}

// ReadingNormalizer converts a raw payload into a Reading
type ReadingNormalizer interface {
	Normalize(payload solarlog.Payload) (reading.Reading, error)
}

// ReadingPublisher sends a Reading to the ingress API
type ReadingPublisher interface {
	Publish(ctx context.Context, r reading.Reading) (ingress.Outcome, error)
}

// Forwarder is a best-effort secondary sink for readings
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, r reading.Reading) error
}

// ReaderService drives the poll loop
type ReaderService struct {
	device     DeviceReader
	normalizer ReadingNormalizer
	publisher  ReadingPublisher
	forwarders []Forwarder
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	state   atomic.Int32
	running atomic.Bool

	mu     sync.Mutex
	cycles uint64
	last   *CycleResult
}

// NewReaderService creates a new reader service
func NewReaderService(
	device DeviceReader,
	normalizer ReadingNormalizer,
	publisher ReadingPublisher,
	forwarders []Forwarder,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReaderService {
	return &ReaderService{
		device:     device,
		normalizer: normalizer,
		publisher:  publisher,
		forwarders: forwarders,
		interval:   cfg.Interval(),
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Run polls until ctx is cancelled. Cycle failures never end the loop.
func (s *ReaderService) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	defer s.setState(StateIdle)

	forwarderNames := make([]string, 0, len(s.forwarders))
	for _, f := range s.forwarders {
		forwarderNames = append(forwarderNames, f.Name())
	}
	s.logger.Info("starting poll loop",
		zap.Duration("interval", s.interval),
		zap.Strings("forwarders", forwarderNames),
	)

	for {
		if ctx.Err() != nil {
			s.logger.Info("poll loop stopped")
			return
		}

		s.RunCycle(ctx)

		if !s.sleep(ctx) {
			s.logger.Info("poll loop stopped")
			return
		}
	}
}

// sleep waits one interval and reports false if ctx ended first
func (s *ReaderService) sleep(ctx context.Context) bool {
	s.setState(StateSleeping)
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunCycle performs one fetch -> normalize -> publish pass and reports how it ended.
// Panics are recovered and reported as a skipped cycle.
func (s *ReaderService) RunCycle(ctx context.Context) (result CycleResult) {
	start := s.now()
	result = CycleResult{ID: uuid.New().String(), StartedAt: start}
	logger := logging.WithCycleID(s.logger, result.ID)

	defer func() {
		if rec := recover(); rec != nil {
			result = result.skip(result.Phase, fmt.Errorf("panic during %s: %v", result.Phase, rec))
			logger.Error("recovered from panic in poll cycle",
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
		result.Duration = s.now().Sub(start)
		s.finish(logger, result)
	}()

	result.Phase = PhaseFetch
	s.setState(StateFetching)
	payload, err := s.device.FetchLiveData(ctx)
	if err != nil {
		return result.skip(PhaseFetch, err)
	}

	result.Phase = PhaseNormalize
	s.setState(StateNormalizing)
	r, err := s.normalizer.Normalize(payload)
	if err != nil {
		return result.skip(PhaseNormalize, err)
	}
	result.ReadingAt = r.TakenAt()
	logger.Info("retrieved reading", zap.Any("reading", r))
	if !r.TakenAt().IsZero() && !timeparser.IsWithinTolerance(r.TakenAt(), start, staleReadingTolerance) {
		logger.Warn("device timestamp is far from local clock",
			zap.String("date", r.Date),
			zap.Duration("tolerance", staleReadingTolerance),
		)
	}

	result.Phase = PhasePublish
	s.setState(StatePublishing)
	logger.Debug("publishing values ...")
	outcome, err := s.publisher.Publish(ctx, r)
	s.forward(ctx, logger, r)
	if err != nil {
		return result.skip(PhasePublish, err)
	}

	result.StatusCode = outcome.StatusCode
	result.Body = outcome.Body
	s.metrics.ObservePublish(outcome.StatusCode, outcome.Accepted(), s.now())
	if !outcome.Accepted() {
		result.Status = CycleRejected
		return result
	}
	result.Status = CycleSucceeded
	return result
}

// Status returns a snapshot of the scheduler
func (s *ReaderService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running.Load(),
		State:    State(s.state.Load()),
		Cycles:   s.cycles,
		Interval: s.interval,
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	return st
}

func (s *ReaderService) setState(state State) {
	s.state.Store(int32(state))
}

func (s *ReaderService) finish(logger *zap.Logger, result CycleResult) {
	s.mu.Lock()
	s.cycles++
	s.last = &result
	s.mu.Unlock()

	s.metrics.ObserveCycle(string(result.Status), string(result.Phase), result.Duration)

	switch result.Status {
	case CycleSucceeded:
		logger.Info("Successfully published data.", zap.Duration("duration", result.Duration))
	case CycleRejected:
		logger.Error("ingress API rejected reading",
			zap.Int("status_code", result.StatusCode),
			logging.Body(result.Body),
		)
	default:
		fields := []zap.Field{
			zap.String("phase", string(result.Phase)),
			zap.Error(result.Err),
		}
		var commErr *solarlog.DeviceCommunicationError
		if errors.As(result.Err, &commErr) && commErr.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", commErr.StatusCode), logging.Body(commErr.Body))
		}
		logger.Error("poll cycle skipped", fields...)
	}
}

// forward hands r to every secondary sink. Their failures are logged only.
func (s *ReaderService) forward(ctx context.Context, logger *zap.Logger, r reading.Reading) {
	for _, f := range s.forwarders {
		if err := s.forwardOne(ctx, f, r); err != nil {
			s.metrics.ObserveForwardError(f.Name())
			logger.Warn("failed to forward reading",
				zap.String("sink", f.Name()),
				zap.Error(err),
			)
		}
	}
}

func (s *ReaderService) forwardOne(ctx context.Context, f Forwarder, r reading.Reading) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in forwarder: %v", rec)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	return f.Forward(fctx, r)
}
