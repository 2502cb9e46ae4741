package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/agent"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// poll fetches the run snapshot once and replays its trace. There is no
// retry loop and no reattachment to the live feed: a run still in progress
// completes after the fallback delay.
func (s *Session) poll(ctx context.Context) {
	featureID, runID := s.Run()
	s.acc.SetHeadline("Loading run results...")

	snapshot, err := s.m.pipeline.GetResults(ctx, featureID, runID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("failed to fetch run snapshot", zap.Error(err))
		s.setLastError(err.Error())
		s.acc.SetHeadline("Error: could not load run results")
		s.waitFallback(ctx, err)
		return
	}

	if !s.replay(ctx, snapshot.AgentTrace) {
		return
	}

	if snapshot.Status.IsTerminal() {
		var cause error
		if snapshot.Status == domain.RunStatusFailed {
			cause = fmt.Errorf("pipeline run %s failed", runID)
			s.setLastError(cause.Error())
			s.acc.SetHeadline("Error: pipeline run failed")
		}
		s.complete(ctx, domain.ReasonTerminalSnapshot, cause)
		return
	}

	s.logger.Info("run still in progress, completing after fallback delay",
		zap.String("status", string(snapshot.Status)),
		zap.Duration("delay", s.m.cfg.PollFallbackDelay))
	s.waitFallback(ctx, nil)
}

// waitFallback completes the session after the bounded fallback delay.
func (s *Session) waitFallback(ctx context.Context, cause error) {
	if !sleep(ctx, s.m.cfg.PollFallbackDelay) {
		return
	}
	s.complete(ctx, domain.ReasonFallbackTimeout, cause)
}

// replay feeds historical trace items into the accumulator at the catch-up
// cadence. Entries are merged by position, so replaying the same items again
// adds nothing. It returns false if the session was torn down midway.
func (s *Session) replay(ctx context.Context, items []domain.TraceItem) bool {
	positions := make(map[domain.AgentID]int, len(domain.Agents))

	for i, item := range items {
		if ctx.Err() != nil {
			return false
		}

		id, match := s.resolveAgent(item.Agent, item.Step)
		dropLogs := match == agent.Fallback && s.m.cfg.StrictAgents

		headline := item.Step
		if headline == "" {
			headline = agent.Name(id)
		}
		s.acc.SetHeadline(headline)
		s.acc.MarkActive(id)

		for _, line := range item.Logs {
			if dropLogs {
				s.m.metrics.ThoughtDropped()
				continue
			}
			s.acc.MergeHistory(id, positions[id], line)
			positions[id]++
		}
		s.acc.ClearActive()

		if i < len(items)-1 && !sleep(ctx, s.m.cfg.CatchupInterval) {
			return false
		}
	}
	return ctx.Err() == nil
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
