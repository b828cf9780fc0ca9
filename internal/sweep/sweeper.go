package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/metrics"
	"github.com/cydriclopez/badmeter.com/internal/platform/logging"
)

// Sweeper marks under-quota topics as purged once their grace window has
// passed. Purged topics keep their slug and stay readable; they only stop
// accepting votes.
type Sweeper struct {
	ledger     domain.Ledger
	policy     domain.Policy
	clock      clockwork.Clock
	invalidate func(slug string)
}

// NewSweeper wires a sweeper. invalidate may be nil when no stats cache is
// in play.
func NewSweeper(ledger domain.Ledger, clock clockwork.Clock, policy domain.Policy, invalidate func(slug string)) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		policy:     policy,
		clock:      clock,
		invalidate: invalidate,
	}
}

// Sweep runs one pass at the given instant and returns the slugs it purged.
// A topic qualifies when it has been live for the full grace window and its
// counted votes still fall short of the quota.
func (s *Sweeper) Sweep(ctx context.Context, at time.Time) ([]string, error) {
	started := s.clock.Now()

	createdBefore := at.Add(-s.policy.GraceWindow)
	candidates, err := s.ledger.PurgeCandidates(ctx, createdBefore, s.policy.VoteQuota)
	if err != nil {
		return nil, fmt.Errorf("selecting purge candidates: %w", err)
	}

	purged := make([]string, 0, len(candidates))
	for _, topic := range candidates {
		log := logging.WithTopic(topic.Slug)
		if err := s.ledger.MarkPurged(ctx, topic.ID); err != nil {
			// Keep going: the rest of the batch is unrelated, and a topic
			// skipped now is picked up by the next pass.
			log.Warn("purge failed", "error", err)
			continue
		}
		if s.invalidate != nil {
			s.invalidate(topic.Slug)
		}
		purged = append(purged, topic.Slug)
		log.Info("topic purged",
			"created_at", topic.CreatedAt,
			"votes", topic.VotesPositive+topic.VotesNegative,
		)
	}

	metrics.TopicsPurgedTotal.Add(float64(len(purged)))
	metrics.SweepDuration.Observe(s.clock.Since(started).Seconds())

	return purged, nil
}
