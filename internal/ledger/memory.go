package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cydriclopez/badmeter.com/internal/domain"
)

// Memory is the in-memory Ledger.
type Memory struct {
	mu         sync.RWMutex
	topics     map[uuid.UUID]*domain.Topic
	bySlug     map[string]uuid.UUID
	votes      map[uuid.UUID][]domain.VoteRecord
	identities map[string]*domain.Identity
}

func NewMemory() *Memory {
	return &Memory{
		topics:     make(map[uuid.UUID]*domain.Topic),
		bySlug:     make(map[string]uuid.UUID),
		votes:      make(map[uuid.UUID][]domain.VoteRecord),
		identities: make(map[string]*domain.Identity),
	}
}

func (m *Memory) CreateTopic(_ context.Context, title, slug string, at time.Time) (*domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Slugs are never recycled, purged topics included.
	if _, exists := m.bySlug[slug]; exists {
		return nil, domain.ErrSlugTaken
	}

	topic := &domain.Topic{
		ID:        uuid.New(),
		Slug:      slug,
		Title:     title,
		Score:     domain.NeutralScore,
		Status:    domain.TopicActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
	m.topics[topic.ID] = topic
	m.bySlug[slug] = topic.ID

	cp := *topic
	return &cp, nil
}

func (m *Memory) GetTopicBySlug(_ context.Context, slug string) (*domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySlug[slug]
	if !ok {
		return nil, domain.ErrTopicNotFound
	}
	cp := *m.topics[id]
	return &cp, nil
}

func (m *Memory) FindTopicByTitlePrefix(_ context.Context, title string) (*domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(title)
	var match *domain.Topic
	for _, topic := range m.topics {
		if topic.Status != domain.TopicActive {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(topic.Title), lowered) {
			continue
		}
		if match == nil || topic.Title < match.Title {
			match = topic
		}
	}
	if match == nil {
		return nil, domain.ErrTopicNotFound
	}
	cp := *match
	return &cp, nil
}

func (m *Memory) ListTopicsByTitlePrefix(_ context.Context, prefix string, limit int) ([]domain.TopicSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(prefix)
	var out []domain.TopicSummary
	for _, topic := range m.topics {
		if topic.Status != domain.TopicActive {
			continue
		}
		if strings.HasPrefix(strings.ToLower(topic.Title), lowered) {
			out = append(out, domain.TopicSummary{Slug: topic.Slug, Title: topic.Title})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetIdentity(_ context.Context, token string) (*domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.identities[token]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return copyIdentity(ident), nil
}

func (m *Memory) GetOrCreateIdentity(_ context.Context, token string, at time.Time) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.identities[token]
	if !ok {
		ident = &domain.Identity{
			Token:       token,
			FirstSeenAt: at,
			Votes:       make(map[uuid.UUID]domain.IdentityVote),
		}
		m.identities[token] = ident
	}
	return copyIdentity(ident), nil
}

func (m *Memory) ApplyVote(_ context.Context, app domain.VoteApplication) (*domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, ok := m.topics[app.TopicID]
	if !ok {
		return nil, domain.ErrTopicNotFound
	}
	if topic.Status != domain.TopicActive {
		return nil, domain.ErrTopicPurged
	}

	ident, ok := m.identities[app.Token]
	if !ok {
		ident = &domain.Identity{
			Token:       app.Token,
			FirstSeenAt: app.At,
			Votes:       make(map[uuid.UUID]domain.IdentityVote),
		}
		m.identities[app.Token] = ident
	}

	prior, hadPrior := ident.Votes[app.TopicID]

	m.votes[app.TopicID] = append(m.votes[app.TopicID], domain.VoteRecord{
		ID:        uuid.New(),
		TopicID:   app.TopicID,
		Token:     app.Token,
		Sentiment: app.Sentiment,
		Comment:   app.Comment,
		CastAt:    app.At,
		Counted:   app.Counted,
	})

	// A later vote replaces the identity's prior entry for this topic; the
	// counters always reflect distinct identities with a counted vote.
	if hadPrior && prior.Counted {
		decrement(topic, prior.Sentiment)
	}
	if app.Counted {
		increment(topic, app.Sentiment)
	}
	topic.Score = domain.ComputeScore(topic.VotesPositive, topic.VotesNegative)
	topic.UpdatedAt = app.At

	ident.Votes[app.TopicID] = domain.IdentityVote{
		Sentiment: app.Sentiment,
		CastAt:    app.At,
		Counted:   app.Counted,
	}

	cp := *topic
	return &cp, nil
}

func (m *Memory) ListVotes(_ context.Context, topicID uuid.UUID) ([]domain.VoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.topics[topicID]; !ok {
		return nil, domain.ErrTopicNotFound
	}
	records := m.votes[topicID]
	out := make([]domain.VoteRecord, len(records))
	copy(out, records)
	return out, nil
}

func (m *Memory) PurgeCandidates(_ context.Context, createdBefore time.Time, quota int) ([]domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Topic
	for _, topic := range m.topics {
		if topic.Status != domain.TopicActive {
			continue
		}
		if topic.CreatedAt.After(createdBefore) {
			continue
		}
		if topic.VotesPositive+topic.VotesNegative >= quota {
			continue
		}
		out = append(out, *topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MarkPurged(_ context.Context, topicID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, ok := m.topics[topicID]
	if !ok {
		return domain.ErrTopicNotFound
	}
	topic.Status = domain.TopicPurged
	return nil
}

func copyIdentity(ident *domain.Identity) *domain.Identity {
	cp := &domain.Identity{
		Token:       ident.Token,
		FirstSeenAt: ident.FirstSeenAt,
		Votes:       make(map[uuid.UUID]domain.IdentityVote, len(ident.Votes)),
	}
	for k, v := range ident.Votes {
		cp.Votes[k] = v
	}
	return cp
}

func increment(topic *domain.Topic, s domain.Sentiment) {
	if s == domain.SentimentUp {
		topic.VotesPositive++
	} else {
		topic.VotesNegative++
	}
}

func decrement(topic *domain.Topic, s domain.Sentiment) {
	if s == domain.SentimentUp && topic.VotesPositive > 0 {
		topic.VotesPositive--
	} else if s == domain.SentimentDown && topic.VotesNegative > 0 {
		topic.VotesNegative--
	}
}
