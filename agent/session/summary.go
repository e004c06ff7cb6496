package session

import (
	"context"
	"strings"
	"time"

	memoryx "github.com/waritk/frontdesk/agent/memory"
)

const fallbackSummaryLimit = 240

// persistSummary runs after teardown, off the call path. It tries the model
// first and falls back to a deterministic truncation of the transcript, then
// writes memory with bounded retries. The caller record must survive a flaky
// store without ever blocking room cleanup.
func (s *Session) persistSummary(ctx context.Context, transcript []string, callerName string) {
	summary := s.summarize(ctx, transcript)

	params := memoryx.UpsertParams{
		CallerID:    s.callerID,
		DisplayName: callerName,
		Summary:     summary,
	}

	var err error
	for attempt := 0; attempt <= s.deps.UpsertRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.log.Warn().Msg("memory upsert abandoned: context cancelled")
				return
			case <-time.After(s.retryBackoff(attempt)):
			}
		}

		upsertCtx, cancel := context.WithTimeout(ctx, s.deps.StageTimeout)
		err = s.deps.Memory.Upsert(upsertCtx, params)
		cancel()
		if err == nil {
			s.log.Info().Int("attempt", attempt+1).Msg("caller memory saved")
			return
		}
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("memory upsert failed")
	}

	s.log.Error().Err(err).Msg("caller memory lost: all upsert attempts failed")
}

func (s *Session) summarize(ctx context.Context, transcript []string) string {
	if len(transcript) == 0 {
		return ""
	}

	if s.deps.Summarizer != nil {
		sumCtx, cancel := context.WithTimeout(ctx, s.deps.StageTimeout)
		summary, err := s.deps.Summarizer.Summarize(sumCtx, transcript)
		cancel()
		if err == nil {
			return summary
		}
		s.log.Warn().Err(err).Msg("model summary failed, using fallback")
	}

	return fallbackSummary(transcript, fallbackSummaryLimit)
}

// fallbackSummary is deterministic: the caller's utterances joined in order,
// cut at a word boundary. No model involved, so it cannot fail.
func fallbackSummary(transcript []string, limit int) string {
	var parts []string
	for _, line := range transcript {
		if rest, ok := strings.CutPrefix(line, "caller: "); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				parts = append(parts, rest)
			}
		}
	}
	if len(parts) == 0 {
		// A call where the caller never spoke; keep what the agent said.
		parts = transcript
	}

	joined := strings.Join(parts, " ")
	if len(joined) <= limit {
		return joined
	}

	cut := joined[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}

func (s *Session) retryBackoff(attempt int) time.Duration {
	backoff := s.deps.RetryBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return backoff * time.Duration(attempt)
}
