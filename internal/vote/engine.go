package vote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/metrics"
	"github.com/cydriclopez/badmeter.com/internal/platform/logging"
)

// Engine orchestrates vote attempts and topic creation against the ledger.
// It performs no internal threading; callers invoke it concurrently and each
// externally visible operation appears atomic.
type Engine struct {
	ledger domain.Ledger
	clock  clockwork.Clock
	policy domain.Policy
	locks  *pairLocks
	cache  *StatsCache
}

// NewEngine wires the engine. cache may be nil to disable stats caching.
func NewEngine(ledger domain.Ledger, clock clockwork.Clock, policy domain.Policy, cache *StatsCache) *Engine {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Engine{
		ledger: ledger,
		clock:  clock,
		policy: policy,
		locks:  newPairLocks(),
		cache:  cache,
	}
}

// Now exposes the engine's clock so transport adapters stamp attempts with
// the same time source the policy uses.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// AttemptVote validates and applies one vote attempt. Business outcomes are
// returned as values; the error is non-nil only for storage failures, which
// propagate unchanged for the caller's retry policy.
func (e *Engine) AttemptVote(ctx context.Context, topicSlug, token string, sentiment domain.Sentiment, comment string, at time.Time) (domain.Outcome, error) {
	release := e.locks.acquire(pairKey{Slug: topicSlug, Token: token})
	defer release()

	topic, err := e.ledger.GetTopicBySlug(ctx, topicSlug)
	if errors.Is(err, domain.ErrTopicNotFound) {
		metrics.VoteAttemptsTotal.WithLabelValues(string(domain.OutcomeTopicNotFound)).Inc()
		return domain.OutcomeTopicNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if topic.Status == domain.TopicPurged {
		metrics.VoteAttemptsTotal.WithLabelValues(string(domain.OutcomeTopicPurged)).Inc()
		return domain.OutcomeTopicPurged, nil
	}

	ident, err := e.ledger.GetOrCreateIdentity(ctx, token, at)
	if err != nil {
		return "", err
	}

	if prior, ok := ident.Votes[topic.ID]; ok && domain.SameCalendarDay(prior.CastAt, at, e.policy.Location) {
		metrics.VoteAttemptsTotal.WithLabelValues(string(domain.OutcomeAlreadyVotedToday)).Inc()
		return domain.OutcomeAlreadyVotedToday, nil
	}

	counted := !e.withinCooldown(ident, at)

	_, err = e.ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID:   topic.ID,
		Token:     token,
		Sentiment: sentiment,
		Comment:   comment,
		At:        at,
		Counted:   counted,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		// Another instance landed the same (topic, identity, day) vote first.
		metrics.VoteAttemptsTotal.WithLabelValues(string(domain.OutcomeAlreadyVotedToday)).Inc()
		return domain.OutcomeAlreadyVotedToday, nil
	case errors.Is(err, domain.ErrTopicPurged):
		// The sweeper won the race; the vote was not applied.
		metrics.VoteAttemptsTotal.WithLabelValues(string(domain.OutcomeTopicPurged)).Inc()
		return domain.OutcomeTopicPurged, nil
	case err != nil:
		return "", err
	}

	outcome := domain.OutcomeAccepted
	if !counted {
		outcome = domain.OutcomeAcceptedPendingCooldown
	}
	if counted && e.cache != nil {
		e.cache.Invalidate(topicSlug)
	}

	metrics.VoteAttemptsTotal.WithLabelValues(string(outcome)).Inc()
	logging.WithToken(token).Debug("vote attempt applied", "topic_slug", topicSlug, "outcome", outcome, "counted", counted)
	return outcome, nil
}

// withinCooldown applies the new-identity wait period: only a brand-new
// identity (no counted votes anywhere) still inside the cooldown window is
// held back.
func (e *Engine) withinCooldown(ident *domain.Identity, at time.Time) bool {
	if at.Sub(ident.FirstSeenAt) >= e.policy.Cooldown {
		return false
	}
	return ident.CountedVotes() == 0
}

// CreateTopic creates a topic from a title, registering the creator's
// identity. created=false signals the soft-duplicate case: an Active topic
// with a case-insensitively prefix-matching title already exists and the
// caller should redirect there instead.
func (e *Engine) CreateTopic(ctx context.Context, title, token string, at time.Time) (string, bool, error) {
	title = squeezeSpaces(title)
	if title == "" {
		return "", false, fmt.Errorf("empty topic title")
	}

	existing, err := e.ledger.FindTopicByTitlePrefix(ctx, title)
	if err == nil {
		return existing.Slug, false, nil
	}
	if !errors.Is(err, domain.ErrTopicNotFound) {
		return "", false, err
	}

	topicSlug := slug.Make(title)
	if topicSlug == "" {
		return "", false, fmt.Errorf("title %q yields an empty slug", title)
	}

	if _, err := e.ledger.GetOrCreateIdentity(ctx, token, at); err != nil {
		return "", false, err
	}

	topic, err := e.ledger.CreateTopic(ctx, title, topicSlug, at)
	if errors.Is(err, domain.ErrSlugTaken) {
		// Lost a creation race, or an equal slug from a differently cased
		// title. Redirect to the holder if it is still active.
		holder, getErr := e.ledger.GetTopicBySlug(ctx, topicSlug)
		if getErr == nil && holder.Status == domain.TopicActive {
			return holder.Slug, false, nil
		}
		return "", false, domain.ErrSlugTaken
	}
	if err != nil {
		return "", false, err
	}

	metrics.TopicsCreatedTotal.Inc()
	logging.WithTopic(topic.Slug).Info("topic created", "title", title)
	return topic.Slug, true, nil
}

// TopicStats returns the published stats for a topic, served from the cache
// when fresh. Purged topics remain readable.
func (e *Engine) TopicStats(ctx context.Context, topicSlug string) (*domain.TopicStats, error) {
	if e.cache != nil {
		if stats, ok := e.cache.Get(topicSlug); ok {
			metrics.StatsCacheHits.Inc()
			return stats, nil
		}
		metrics.StatsCacheMisses.Inc()
	}

	topic, err := e.ledger.GetTopicBySlug(ctx, topicSlug)
	if err != nil {
		return nil, err
	}

	stats := domain.TopicStats{
		Slug:          topic.Slug,
		Title:         topic.Title,
		Score:         topic.Score,
		VotesPositive: topic.VotesPositive,
		VotesNegative: topic.VotesNegative,
		Status:        topic.Status,
		CreatedAt:     topic.CreatedAt,
		PurgeDate:     topic.CreatedAt.Add(e.policy.GraceWindow),
		VotesNeeded:   votesNeeded(topic, e.policy.VoteQuota),
	}
	if e.cache != nil {
		e.cache.Set(topicSlug, stats)
	}
	return &stats, nil
}

// IdentityStats reports an identity's standing against one topic: whether it
// already voted today, whether its votes are still held by the cooldown, and
// when it was first seen. Unknown identities are brand-new by definition.
func (e *Engine) IdentityStats(ctx context.Context, token, topicSlug string, at time.Time) (*domain.IdentityStats, error) {
	topic, err := e.ledger.GetTopicBySlug(ctx, topicSlug)
	if err != nil {
		return nil, err
	}

	ident, err := e.ledger.GetIdentity(ctx, token)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return &domain.IdentityStats{WithinCooldown: e.policy.Cooldown > 0}, nil
	}
	if err != nil {
		return nil, err
	}

	up, down := ident.CountedBySentiment()
	stats := &domain.IdentityStats{
		WithinCooldown: e.withinCooldown(ident, at),
		FirstSeenAt:    ident.FirstSeenAt,
		CountedVotes:   ident.CountedVotes(),
		VotesPositive:  up,
		VotesNegative:  down,
	}
	if prior, ok := ident.Votes[topic.ID]; ok && domain.SameCalendarDay(prior.CastAt, at, e.policy.Location) {
		stats.HasVotedToday = true
	}
	return stats, nil
}

// Search lists Active topics whose title starts with the given prefix.
// Read-only; feeds the autocomplete box outside the core.
func (e *Engine) Search(ctx context.Context, prefix string, limit int) ([]domain.TopicSummary, error) {
	prefix = squeezeSpaces(prefix)
	if prefix == "" {
		return nil, nil
	}
	return e.ledger.ListTopicsByTitlePrefix(ctx, prefix, limit)
}

// ListVotes returns a topic's audit trail, pending votes included.
func (e *Engine) ListVotes(ctx context.Context, topicSlug string) ([]domain.VoteRecord, error) {
	topic, err := e.ledger.GetTopicBySlug(ctx, topicSlug)
	if err != nil {
		return nil, err
	}
	return e.ledger.ListVotes(ctx, topic.ID)
}

// InvalidateStats drops a topic's cached stats. The sweeper calls this after
// a purge.
func (e *Engine) InvalidateStats(topicSlug string) {
	if e.cache != nil {
		e.cache.Invalidate(topicSlug)
	}
}

// squeezeSpaces collapses runs of whitespace into single spaces and trims the
// ends, matching how titles are normalized before slugging and matching.
func squeezeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// votesNeeded reports how many counted votes the topic still lacks to
// escape the retention sweep.
func votesNeeded(topic *domain.Topic, quota int) int {
	remaining := quota - topic.VotesPositive - topic.VotesNegative
	if remaining < 0 {
		return 0
	}
	return remaining
}
