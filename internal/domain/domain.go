package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

// Sentiment is the direction of a vote.
type Sentiment string

const (
	SentimentUp   Sentiment = "up"
	SentimentDown Sentiment = "down"
)

// ParseSentiment converts the wire form ("up"/"down") into a Sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(s) {
	case SentimentUp:
		return SentimentUp, nil
	case SentimentDown:
		return SentimentDown, nil
	}
	return "", fmt.Errorf("invalid sentiment %q", s)
}

// TopicStatus is the lifecycle state of a topic. Purged is terminal.
type TopicStatus string

const (
	TopicActive TopicStatus = "active"
	TopicPurged TopicStatus = "purged"
)

type Topic struct {
	ID            uuid.UUID   `db:"id"`
	Slug          string      `db:"slug"`
	Title         string      `db:"title"`
	VotesPositive int         `db:"votes_positive"`
	VotesNegative int         `db:"votes_negative"`
	Score         float64     `db:"score"`
	Status        TopicStatus `db:"status"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

// TopicSummary is the projection returned by prefix search.
type TopicSummary struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// IdentityVote is the single vote an identity holds per topic. A later vote
// on the same topic replaces it; it never duplicates.
type IdentityVote struct {
	Sentiment Sentiment
	CastAt    time.Time
	Counted   bool
}

// Identity is one voter's persistent client-side token and its vote history.
type Identity struct {
	Token       string
	FirstSeenAt time.Time
	Votes       map[uuid.UUID]IdentityVote
}

// CountedVotes reports how many counted votes the identity holds anywhere.
func (i *Identity) CountedVotes() int {
	n := 0
	for _, v := range i.Votes {
		if v.Counted {
			n++
		}
	}
	return n
}

// CountedBySentiment splits the identity's counted votes into up and down
// totals, the pair shown next to the identity's row on the vote page.
func (i *Identity) CountedBySentiment() (up, down int) {
	for _, v := range i.Votes {
		if !v.Counted {
			continue
		}
		if v.Sentiment == SentimentUp {
			up++
		} else {
			down++
		}
	}
	return up, down
}

// VoteRecord is the append-only audit entry for a vote attempt that was
// stored (counted or pending cooldown). Immutable once written.
type VoteRecord struct {
	ID        uuid.UUID `json:"id"`
	TopicID   uuid.UUID `json:"topic_id"`
	Token     string    `json:"-"`
	Sentiment Sentiment `json:"sentiment"`
	Comment   string    `json:"comment"`
	CastAt    time.Time `json:"cast_at"`
	Counted   bool      `json:"counted"`
}

// --- Outcomes ---

// Outcome is the result variant of a vote attempt. Business outcomes are
// values returned to the caller, never smuggled through error state.
type Outcome string

const (
	OutcomeAccepted                Outcome = "accepted"
	OutcomeAcceptedPendingCooldown Outcome = "accepted_pending_cooldown"
	OutcomeAlreadyVotedToday       Outcome = "already_voted_today"
	OutcomeTopicNotFound           Outcome = "topic_not_found"
	OutcomeTopicPurged             Outcome = "topic_purged"
)

// --- Read projections ---

type TopicStats struct {
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	Score         float64     `json:"score"`
	VotesPositive int         `json:"votes_positive"`
	VotesNegative int         `json:"votes_negative"`
	Status        TopicStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`

	// PurgeDate is when the topic becomes eligible for the retention sweep;
	// VotesNeeded is how many counted votes are still missing to escape it.
	PurgeDate   time.Time `json:"purge_date"`
	VotesNeeded int       `json:"votes_needed"`
}

type IdentityStats struct {
	HasVotedToday  bool      `json:"has_voted_today"`
	WithinCooldown bool      `json:"within_cooldown"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	CountedVotes   int       `json:"counted_votes"`
	VotesPositive  int       `json:"votes_positive"`
	VotesNegative  int       `json:"votes_negative"`
}

// --- Policy ---

// Policy carries the temporal rules. Passed in at construction; nothing reads
// ambient process state.
type Policy struct {
	Cooldown    time.Duration
	GraceWindow time.Duration
	VoteQuota   int
	Location    *time.Location
}

// SameCalendarDay reports whether a and b fall on the same calendar day in
// loc. The 1-vote-per-day rule uses calendar days, not a rolling 24h window.
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// --- Persistence contract ---

// VoteApplication is the fully decided vote handed to the ledger. The engine
// has already resolved policy; the ledger's job is to commit it as one unit:
// audit record, identity vote entry, and topic counters together or not at all.
type VoteApplication struct {
	TopicID   uuid.UUID
	Token     string
	Sentiment Sentiment
	Comment   string
	At        time.Time
	Counted   bool
}

// Ledger is the persistence contract shared by the in-memory and PostgreSQL
// implementations. Mutating calls must be atomic; reads return copies.
type Ledger interface {
	CreateTopic(ctx context.Context, title, slug string, at time.Time) (*Topic, error)
	GetTopicBySlug(ctx context.Context, slug string) (*Topic, error)
	// FindTopicByTitlePrefix returns the Active topic whose title
	// case-insensitively starts with the given title, preferring the
	// lexicographically smallest match. Used for soft duplicate detection
	// at creation.
	FindTopicByTitlePrefix(ctx context.Context, title string) (*Topic, error)
	ListTopicsByTitlePrefix(ctx context.Context, prefix string, limit int) ([]TopicSummary, error)

	GetIdentity(ctx context.Context, token string) (*Identity, error)
	GetOrCreateIdentity(ctx context.Context, token string, at time.Time) (*Identity, error)

	// ApplyVote commits a decided vote. It fails with ErrTopicPurged if the
	// topic was purged after the engine's eligibility check, and with
	// ErrDuplicateVote if an identical (topic, identity, day) vote landed
	// concurrently. Returns the topic state after the commit.
	ApplyVote(ctx context.Context, app VoteApplication) (*Topic, error)
	ListVotes(ctx context.Context, topicID uuid.UUID) ([]VoteRecord, error)

	// PurgeCandidates returns every Active topic created at or before
	// createdBefore whose counted votes fall short of quota, ordered by
	// CreatedAt ascending so sweeps are reproducible.
	PurgeCandidates(ctx context.Context, createdBefore time.Time, quota int) ([]Topic, error)
	MarkPurged(ctx context.Context, topicID uuid.UUID) error
}
