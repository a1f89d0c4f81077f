package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camuig/paper-trader/internal/ai"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/syncer"
	"github.com/camuig/paper-trader/internal/trade"
)

type Passer interface {
	RunPass(ctx context.Context) (*syncer.Report, error)
}

type SignalGenerator interface {
	Run(ctx context.Context) ([]trade.Trade, error)
}

type Alerter interface {
	NotifyError(context string, err error)
}

type Scheduler struct {
	syncer       Passer
	generator    SignalGenerator
	alerter      Alerter
	syncInterval time.Duration
	aiInterval   time.Duration
	logger       *logger.Logger
}

// NewScheduler builds a scheduler. generator may be nil to disable the AI
// cycle.
func NewScheduler(s Passer, generator SignalGenerator, alerter Alerter, syncInterval, aiInterval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		syncer:       s,
		generator:    generator,
		alerter:      alerter,
		syncInterval: syncInterval,
		aiInterval:   aiInterval,
		logger:       log,
	}
}

var _ SignalGenerator = (*ai.Generator)(nil)

func (s *Scheduler) Run(ctx context.Context) {
	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()

	var aiC <-chan time.Time
	if s.generator != nil {
		aiTicker := time.NewTicker(s.aiInterval)
		defer aiTicker.Stop()
		aiC = aiTicker.C
	}

	s.logger.Info("scheduler started",
		"sync_interval", s.syncInterval.String(),
		"ai_enabled", s.generator != nil,
		"ai_interval", s.aiInterval.String())

	// Run immediately on start
	s.runSync(ctx)
	if s.generator != nil {
		s.runSignals(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-aiC:
			s.runSignals(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in sync cycle", "panic", fmt.Sprint(r))
			s.alert("sync panic", fmt.Errorf("%v", r))
		}
	}()

	report, err := s.syncer.RunPass(ctx)
	if err != nil {
		if errors.Is(err, price.ErrUnavailable) {
			s.logger.Warn("price unavailable, skipping sync cycle", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sync pass", "error", err)
		s.alert("sync", err)
		return
	}
	if report.Failed > 0 {
		s.alert("sync", fmt.Errorf("%d of %d trades failed to sync", report.Failed, report.Evaluated))
	}
}

func (s *Scheduler) runSignals(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in signal cycle", "panic", fmt.Sprint(r))
			s.alert("signal panic", fmt.Errorf("%v", r))
		}
	}()

	s.logger.Info("starting signal cycle")
	created, err := s.generator.Run(ctx)
	if err != nil {
		s.logger.Error("signal cycle", "error", err)
		s.alert("signals", err)
		return
	}
	s.logger.Info("signal cycle completed", "created", len(created))
}

func (s *Scheduler) alert(context string, err error) {
	if s.alerter != nil {
		s.alerter.NotifyError(context, err)
	}
}
