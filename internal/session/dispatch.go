package session

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/agent"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/payload"
)

// milestones maps agent milestone events to their headline.
var milestones = map[domain.EventType]string{
	domain.EventTypeJuryReport:     "Jury report ready",
	domain.EventTypeCriticFeedback: "Critic feedback received",
	domain.EventTypeJudgeVerdict:   "Judge verdict delivered",
}

// results maps background result events to their headline.
var results = map[domain.EventType]string{
	domain.EventTypeDiff:    "Regulation diff ready",
	domain.EventTypeRisk:    "Risk assessment ready",
	domain.EventTypeVerdict: "Verdict received",
}

// dispatch applies one frame to the session. It returns errStreamDone after
// the done frame.
func (s *Session) dispatch(ctx context.Context, frame domain.Frame) error {
	s.m.metrics.FrameDecoded(string(frame.EventType))

	v := payload.Normalize(frame.Data)
	if v.Malformed {
		s.m.metrics.MalformedPayload()
		s.logger.Debug("payload is not valid JSON, using raw text",
			zap.String("event", string(frame.EventType)))
	}

	et := frame.EventType
	switch {
	case et == domain.EventTypeStatus:
		s.acc.SetHeadline(v.String())

	case et == domain.EventTypeError:
		msg := v.String()
		s.setLastError(msg)
		s.acc.SetHeadline("Error: " + msg)

	case et == domain.EventTypeDone:
		s.handleDone(ctx, v)
		return errStreamDone

	case payload.IsThinking(et):
		s.handleThinking(et, v)

	default:
		if headline, ok := milestones[et]; ok {
			s.handleMilestone(et, headline)
			return nil
		}
		if headline, ok := results[et]; ok {
			s.acc.SetHeadline(headline)
			return nil
		}
		s.logger.Debug("ignoring stream event", zap.String("event", string(et)))
	}
	return nil
}

func (s *Session) handleThinking(et domain.EventType, v payload.Value) {
	msg, isLog, ok := v.Thought(et)
	if !ok {
		s.logger.Debug("thinking event carried no message", zap.String("event", string(et)))
		return
	}

	id, match := s.resolveAgent(string(et))
	if !isLog {
		s.acc.SetHeadline(msg)
		s.acc.MarkActive(id)
		return
	}
	if match == agent.Fallback && s.m.cfg.StrictAgents {
		s.m.metrics.ThoughtDropped()
		return
	}
	s.acc.AppendThought(id, msg)
}

func (s *Session) handleMilestone(et domain.EventType, headline string) {
	id, _ := s.resolveAgent(string(et))
	s.acc.SetHeadline(headline)
	if s.acc.Active() == id {
		s.acc.ClearActive()
	}
}

func (s *Session) handleDone(ctx context.Context, v payload.Value) {
	done := v.Done()
	featureID, runID := done.FeatureID, done.RunID

	known, _ := s.Run()
	if featureID == "" {
		featureID = known
	}
	if featureID == "" || runID == "" {
		id := uuid.New().String()[:8]
		if featureID == "" {
			featureID = "feat_" + id
		}
		if runID == "" {
			runID = "run_" + id
		}
		s.logger.Warn("done frame carried no run identity, synthesized one",
			zap.String("feature_id", featureID),
			zap.String("run_id", runID),
		)
	}
	s.setRun(featureID, runID)

	if done.Message != "" {
		s.acc.SetHeadline(done.Message)
	}

	s.complete(ctx, domain.ReasonStreamDone, nil)
}

// resolveAgent maps a name to an agent, flagging default-mapped names.
func (s *Session) resolveAgent(names ...string) (domain.AgentID, agent.Match) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if id, match := agent.Resolve(name); match == agent.Matched {
			return id, match
		}
	}

	s.m.metrics.AgentFallback()
	s.logger.Warn("unknown agent reference, using default agent",
		zap.Strings("names", names),
		zap.String("agent", string(agent.Default)))
	return agent.Default, agent.Fallback
}
