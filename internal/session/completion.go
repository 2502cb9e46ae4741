package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// gate is a single-fire latch.
type gate struct {
	once sync.Once
	done atomic.Bool
}

func (g *gate) fire(fn func()) bool {
	fired := false
	g.once.Do(func() {
		g.done.Store(true)
		fired = true
		fn()
	})
	return fired
}

func (g *gate) fired() bool {
	return g.done.Load()
}

// complete runs the post-completion action once per session. Later calls,
// whatever their reason, are no-ops. It reports whether this call fired.
func (s *Session) complete(ctx context.Context, reason domain.CompletionReason, cause error) bool {
	return s.gate.fire(func() {
		s.acc.ClearActive()

		featureID, runID := s.Run()
		state := s.acc.Snapshot()
		outcome := &domain.Outcome{
			Key:         s.key,
			FeatureID:   featureID,
			RunID:       runID,
			Mode:        s.Mode(),
			Reason:      reason,
			Headline:    state.Headline,
			Entries:     state.EntryCount(),
			CompletedAt: time.Now(),
		}
		if cause != nil {
			outcome.Error = cause.Error()
		}

		// Bookkeeping outlives a teardown racing the completion signal.
		bctx := context.WithoutCancel(ctx)
		if reason == domain.ReasonStreamDone {
			s.consumePending(bctx)
		}
		s.archive(bctx, outcome)

		s.mu.Lock()
		s.outcome = outcome
		s.mode = domain.ModeCompleted
		s.mu.Unlock()
		s.setPhase(domain.PhaseCompleted)

		s.m.metrics.SessionCompleted(string(reason))
		fields := []zap.Field{
			zap.String("reason", string(reason)),
			zap.String("feature_id", featureID),
			zap.String("run_id", runID),
			zap.Int("entries", outcome.Entries),
		}
		if cause != nil {
			s.logger.Warn("session completed with error", append(fields, zap.Error(cause))...)
		} else {
			s.logger.Info("session completed", fields...)
		}

		close(s.completed)

		if reason == domain.ReasonStreamDone {
			s.finalize(ctx, featureID, runID)
		}
	})
}

func (s *Session) consumePending(ctx context.Context) {
	removed, err := s.token.consume(ctx)
	if err != nil {
		s.logger.Error("failed to remove pending submission", zap.Error(err))
		return
	}
	if removed {
		s.logger.Debug("pending submission consumed", zap.String("pending_id", s.pending.ID))
	}
}

func (s *Session) archive(ctx context.Context, outcome *domain.Outcome) {
	if s.m.outcomes == nil || outcome.Reason == domain.ReasonIdle {
		return
	}
	if err := s.m.outcomes.RecordOutcome(ctx, outcome); err != nil {
		s.logger.Error("failed to archive session outcome", zap.Error(err))
	}
}

// finalize fires the post-completion call without waiting for it.
// Its failure is logged only.
func (s *Session) finalize(ctx context.Context, featureID, runID string) {
	s.m.wg.Add(1)
	go func() {
		defer s.m.wg.Done()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.m.finalizeTimeout)
		defer cancel()

		if err := s.m.pipeline.Finalize(fctx, featureID, runID); err != nil {
			s.logger.Error("failed to finalize run",
				zap.String("feature_id", featureID),
				zap.String("run_id", runID),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("finalize requested", zap.String("feature_id", featureID), zap.String("run_id", runID))
	}()
}
