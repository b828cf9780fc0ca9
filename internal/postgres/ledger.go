package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cydriclopez/badmeter.com/internal/domain"
)

const uniqueViolationCode = "23505"

// Ledger is the PostgreSQL implementation of domain.Ledger. Every mutating
// call runs in a single transaction; the topic row is locked FOR UPDATE so
// counter updates serialize across instances.
type Ledger struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewLedger wraps a pool. loc defines the calendar day used for the
// duplicate-vote check; it must match the engine's policy location.
func NewLedger(pool *pgxpool.Pool, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{pool: pool, loc: loc}
}

const topicColumns = "id, slug, title, votes_positive, votes_negative, score, status, created_at, updated_at"

func scanTopic(row pgx.Row) (*domain.Topic, error) {
	var t domain.Topic
	var status string
	err := row.Scan(&t.ID, &t.Slug, &t.Title, &t.VotesPositive, &t.VotesNegative, &t.Score, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TopicStatus(status)
	return &t, nil
}

func (l *Ledger) CreateTopic(ctx context.Context, title, slug string, at time.Time) (*domain.Topic, error) {
	row := l.pool.QueryRow(ctx, `
		INSERT INTO topics (id, slug, title, score, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		RETURNING `+topicColumns,
		uuid.New(), slug, title, domain.NeutralScore, at,
	)

	topic, err := scanTopic(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return nil, domain.ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}
	return topic, nil
}

func (l *Ledger) GetTopicBySlug(ctx context.Context, slug string) (*domain.Topic, error) {
	row := l.pool.QueryRow(ctx, "SELECT "+topicColumns+" FROM topics WHERE slug = $1", slug)
	topic, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic by slug: %w", err)
	}
	return topic, nil
}

// likePrefix escapes LIKE metacharacters so user input matches literally.
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(s)) + "%"
}

func (l *Ledger) FindTopicByTitlePrefix(ctx context.Context, title string) (*domain.Topic, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+topicColumns+` FROM topics
		WHERE status = 'active' AND lower(title) LIKE $1
		ORDER BY title ASC
		LIMIT 1`,
		likePrefix(title),
	)
	topic, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find topic by title prefix: %w", err)
	}
	return topic, nil
}

func (l *Ledger) ListTopicsByTitlePrefix(ctx context.Context, prefix string, limit int) ([]domain.TopicSummary, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT slug, title FROM topics
		WHERE status = 'active' AND lower(title) LIKE $1
		ORDER BY title ASC
		LIMIT NULLIF($2, 0)`,
		likePrefix(prefix), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics by title prefix: %w", err)
	}
	defer rows.Close()

	var out []domain.TopicSummary
	for rows.Next() {
		var s domain.TopicSummary
		if err := rows.Scan(&s.Slug, &s.Title); err != nil {
			return nil, fmt.Errorf("failed to scan topic summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (l *Ledger) GetIdentity(ctx context.Context, token string) (*domain.Identity, error) {
	ident := domain.Identity{Token: token, Votes: make(map[uuid.UUID]domain.IdentityVote)}

	err := l.pool.QueryRow(ctx, "SELECT first_seen_at FROM identities WHERE token = $1", token).
		Scan(&ident.FirstSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		"SELECT topic_id, sentiment, cast_at, counted FROM identity_votes WHERE token = $1", token)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var topicID uuid.UUID
		var vote domain.IdentityVote
		var sentiment string
		if err := rows.Scan(&topicID, &sentiment, &vote.CastAt, &vote.Counted); err != nil {
			return nil, fmt.Errorf("failed to scan identity vote: %w", err)
		}
		vote.Sentiment = domain.Sentiment(sentiment)
		ident.Votes[topicID] = vote
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (l *Ledger) GetOrCreateIdentity(ctx context.Context, token string, at time.Time) (*domain.Identity, error) {
	// first_seen_at is immutable: the upsert never touches an existing row.
	_, err := l.pool.Exec(ctx, `
		INSERT INTO identities (token, first_seen_at)
		VALUES ($1, $2)
		ON CONFLICT (token) DO NOTHING`,
		token, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}
	return l.GetIdentity(ctx, token)
}

func (l *Ledger) ApplyVote(ctx context.Context, app domain.VoteApplication) (*domain.Topic, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin vote transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the topic row first: counter updates on one topic serialize here,
	// across processes too.
	row := tx.QueryRow(ctx, "SELECT "+topicColumns+" FROM topics WHERE id = $1 FOR UPDATE", app.TopicID)
	topic, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock topic: %w", err)
	}
	if topic.Status != domain.TopicActive {
		return nil, domain.ErrTopicPurged
	}

	var prior domain.IdentityVote
	var priorSentiment string
	hadPrior := true
	err = tx.QueryRow(ctx, `
		SELECT sentiment, cast_at, counted FROM identity_votes
		WHERE topic_id = $1 AND token = $2`,
		app.TopicID, app.Token,
	).Scan(&priorSentiment, &prior.CastAt, &prior.Counted)
	if errors.Is(err, pgx.ErrNoRows) {
		hadPrior = false
	} else if err != nil {
		return nil, fmt.Errorf("failed to read prior vote: %w", err)
	}
	prior.Sentiment = domain.Sentiment(priorSentiment)

	// Another instance may have committed the same identity's vote between
	// the engine's eligibility check and this lock.
	if hadPrior && domain.SameCalendarDay(prior.CastAt, app.At, l.loc) {
		return nil, domain.ErrDuplicateVote
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO vote_records (id, topic_id, token, sentiment, comment, cast_at, counted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), app.TopicID, app.Token, string(app.Sentiment), app.Comment, app.At, app.Counted,
	); err != nil {
		return nil, fmt.Errorf("failed to append vote record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO identity_votes (topic_id, token, sentiment, cast_at, counted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (topic_id, token) DO UPDATE
		SET sentiment = excluded.sentiment, cast_at = excluded.cast_at, counted = excluded.counted`,
		app.TopicID, app.Token, string(app.Sentiment), app.At, app.Counted,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert identity vote: %w", err)
	}

	// A later vote replaces the identity's prior entry; counters reflect
	// distinct identities with a counted vote.
	if hadPrior && prior.Counted {
		applyCounter(topic, prior.Sentiment, -1)
	}
	if app.Counted {
		applyCounter(topic, app.Sentiment, +1)
	}
	topic.Score = domain.ComputeScore(topic.VotesPositive, topic.VotesNegative)
	topic.UpdatedAt = app.At

	if _, err := tx.Exec(ctx, `
		UPDATE topics
		SET votes_positive = $2, votes_negative = $3, score = $4, updated_at = $5
		WHERE id = $1`,
		topic.ID, topic.VotesPositive, topic.VotesNegative, topic.Score, topic.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update topic counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit vote: %w", err)
	}
	return topic, nil
}

func applyCounter(t *domain.Topic, s domain.Sentiment, delta int) {
	switch s {
	case domain.SentimentUp:
		t.VotesPositive += delta
	case domain.SentimentDown:
		t.VotesNegative += delta
	}
}

func (l *Ledger) ListVotes(ctx context.Context, topicID uuid.UUID) ([]domain.VoteRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, topic_id, token, sentiment, comment, cast_at, counted
		FROM vote_records
		WHERE topic_id = $1
		ORDER BY cast_at ASC, id ASC`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var out []domain.VoteRecord
	for rows.Next() {
		var r domain.VoteRecord
		var sentiment string
		if err := rows.Scan(&r.ID, &r.TopicID, &r.Token, &sentiment, &r.Comment, &r.CastAt, &r.Counted); err != nil {
			return nil, fmt.Errorf("failed to scan vote record: %w", err)
		}
		r.Sentiment = domain.Sentiment(sentiment)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Ledger) PurgeCandidates(ctx context.Context, createdBefore time.Time, quota int) ([]domain.Topic, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+topicColumns+` FROM topics
		WHERE status = 'active'
		  AND created_at <= $1
		  AND votes_positive + votes_negative < $2
		ORDER BY created_at ASC`,
		createdBefore, quota,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select purge candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purge candidate: %w", err)
		}
		out = append(out, *topic)
	}
	return out, rows.Err()
}

func (l *Ledger) MarkPurged(ctx context.Context, topicID uuid.UUID) error {
	tag, err := l.pool.Exec(ctx,
		"UPDATE topics SET status = 'purged', updated_at = now() WHERE id = $1",
		topicID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark topic purged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTopicNotFound
	}
	return nil
}
