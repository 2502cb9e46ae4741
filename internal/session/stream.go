package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/sse"
)

// errStreamDone stops decoding once the done frame has been handled.
var errStreamDone = errors.New("stream done")

// errNoDone is the cause recorded when the stream ends without a done frame.
var errNoDone = errors.New("stream ended before the pipeline reported completion")

// submissionBody is the JSON body of the stream request.
func submissionBody(p *domain.PendingSubmission) map[string]any {
	body := make(map[string]any, len(p.Context)+1)
	for k, v := range p.Context {
		body[k] = v
	}
	if p.FeatureID != "" {
		body["feature_id"] = p.FeatureID
	}
	return body
}

// stream submits the pending questionnaire and consumes the live feed.
func (s *Session) stream(ctx context.Context) {
	body, err := s.m.pipeline.StartStream(ctx, submissionBody(s.pending))
	if ctx.Err() != nil {
		if body != nil {
			body.Close()
		}
		return
	}
	if err != nil {
		s.logger.Warn("failed to open pipeline stream", zap.Error(err))
		s.fail(ctx, err)
		return
	}
	defer body.Close()

	s.acc.SetHeadline("Connecting to pipeline...")

	err = sse.Decode(ctx, body, func(frame domain.Frame) error {
		return s.dispatch(ctx, frame)
	}, sse.WithSkipHook(func(line string) {
		s.m.metrics.FrameSkipped()
		s.logger.Debug("skipping malformed stream line", zap.String("line", line))
	}))

	// A teardown racing the read is silent.
	if ctx.Err() != nil || s.gate.fired() {
		return
	}
	if err != nil && !errors.Is(err, errStreamDone) {
		s.logger.Warn("pipeline stream failed", zap.Error(err))
		s.fail(ctx, err)
		return
	}

	// The pipeline reports its own failures as an error frame, then closes.
	if msg := s.lastError(); msg != "" {
		s.logger.Warn("pipeline stream closed after an error frame", zap.String("error", msg))
		s.complete(ctx, domain.ReasonError, fmt.Errorf("%w: %s", errNoDone, msg))
		return
	}

	s.logger.Warn("pipeline stream closed without a done frame")
	s.fail(ctx, errNoDone)
}

// fail completes the session with an error and shows it in the headline.
// The pending submission is left in place.
func (s *Session) fail(ctx context.Context, cause error) {
	msg := cause.Error()
	if errors.Is(cause, sse.ErrStreamUnavailable) {
		msg = "pipeline stream unavailable"
	}
	s.setLastError(msg)
	s.acc.SetHeadline(fmt.Sprintf("Error: %s", msg))
	s.complete(ctx, domain.ReasonError, cause)
}
