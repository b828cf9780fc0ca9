package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgtest "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cydriclopez/badmeter.com/internal/domain"
)

var (
	testPool        *pgxpool.Pool
	testDatabaseURL string
)

var testAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	// Start PostgreSQL container once for all tests
	container, err := pgtest.Run(ctx,
		"postgres:15-alpine",
		pgtest.WithDatabase("testdb"),
		pgtest.WithUsername("testuser"),
		pgtest.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
		}
	}()

	testDatabaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	testPool, err = Connect(ctx, testDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer testPool.Close()

	if err := RunMigrationsWithLock(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// setupTestLedger returns a ledger and registers cleanup to truncate tables
func setupTestLedger(t *testing.T) *Ledger {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, err := testPool.Exec(ctx, "TRUNCATE topics, identities, identity_votes, vote_records CASCADE")
		if err != nil {
			t.Logf("Failed to truncate tables: %v", err)
		}
	})

	return NewLedger(testPool, time.UTC)
}

func TestRunMigrations_Idempotency(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	require.NoError(t, RunMigrationsWithLock(ctx, testPool))
	require.NoError(t, RunMigrationsWithLock(ctx, testPool))
}

func TestCreateTopic(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, topic.ID)
	assert.Equal(t, domain.TopicActive, topic.Status)
	assert.InDelta(t, domain.NeutralScore, topic.Score, 0.001)

	// Slug uniqueness holds even for a different title.
	_, err = ledger.CreateTopic(ctx, "Pineapple on Pizza", "pineapple-on-pizza", testAt)
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestGetTopicBySlug_NotFound(t *testing.T) {
	ledger := setupTestLedger(t)
	_, err := ledger.GetTopicBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTopicNotFound)
}

func TestFindTopicByTitlePrefix(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	created, err := ledger.CreateTopic(ctx, "The quick brown fox", "the-quick-brown-fox", testAt)
	require.NoError(t, err)

	found, err := ledger.FindTopicByTitlePrefix(ctx, "the QUICK")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// LIKE metacharacters in the probe match literally.
	_, err = ledger.FindTopicByTitlePrefix(ctx, "the %")
	assert.ErrorIs(t, err, domain.ErrTopicNotFound)

	// Purged topics never match.
	require.NoError(t, ledger.MarkPurged(ctx, created.ID))
	_, err = ledger.FindTopicByTitlePrefix(ctx, "the quick")
	assert.ErrorIs(t, err, domain.ErrTopicNotFound)
}

func TestListTopicsByTitlePrefix(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	_, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	_, err = ledger.CreateTopic(ctx, "Pickle everything", "pickle-everything", testAt)
	require.NoError(t, err)
	_, err = ledger.CreateTopic(ctx, "Olives on pizza", "olives-on-pizza", testAt)
	require.NoError(t, err)

	out, err := ledger.ListTopicsByTitlePrefix(ctx, "pi", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Pickle everything", out[0].Title)
	assert.Equal(t, "Pineapple on pizza", out[1].Title)

	out, err = ledger.ListTopicsByTitlePrefix(ctx, "pi", 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestGetOrCreateIdentity_FirstSeenImmutable(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	first, err := ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	again, err := ledger.GetOrCreateIdentity(ctx, "tok", testAt.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.FirstSeenAt, again.FirstSeenAt)

	_, err = ledger.GetIdentity(ctx, "stranger")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestApplyVote_CountedUpdatesCounters(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	_, err = ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	updated, err := ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentUp, Comment: "love it", At: testAt, Counted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.VotesPositive)
	assert.InDelta(t, 100.0, updated.Score, 0.001)

	records, err := ledger.ListVotes(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "love it", records[0].Comment)
	assert.True(t, records[0].Counted)

	ident, err := ledger.GetIdentity(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, ident.CountedVotes())
}

func TestApplyVote_PendingLeavesCounters(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	_, err = ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	updated, err := ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentUp, At: testAt, Counted: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.VotesPositive+updated.VotesNegative)
	assert.InDelta(t, domain.NeutralScore, updated.Score, 0.001)

	// The audit trail still records the held vote.
	records, err := ledger.ListVotes(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Counted)
}

func TestApplyVote_SameDayDuplicate(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	_, err = ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	_, err = ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentUp, At: testAt, Counted: true,
	})
	require.NoError(t, err)

	_, err = ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentDown, At: testAt.Add(time.Hour), Counted: true,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)
}

func TestApplyVote_NextDayReplaces(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	_, err = ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	_, err = ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentUp, At: testAt, Counted: true,
	})
	require.NoError(t, err)

	updated, err := ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentDown, At: testAt.Add(24 * time.Hour), Counted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.VotesPositive)
	assert.Equal(t, 1, updated.VotesNegative)

	// Audit keeps both entries even though the counters replaced the vote.
	records, err := ledger.ListVotes(ctx, topic.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestApplyVote_PurgedTopic(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)
	require.NoError(t, ledger.MarkPurged(ctx, topic.ID))
	_, err = ledger.GetOrCreateIdentity(ctx, "tok", testAt)
	require.NoError(t, err)

	_, err = ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: topic.ID, Token: "tok", Sentiment: domain.SentimentUp, At: testAt, Counted: true,
	})
	assert.ErrorIs(t, err, domain.ErrTopicPurged)
}

func TestPurgeCandidates(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	old := testAt.Add(-40 * 24 * time.Hour)
	older := testAt.Add(-60 * 24 * time.Hour)

	newer, err := ledger.CreateTopic(ctx, "Newer quiet topic", "newer-quiet-topic", old)
	require.NoError(t, err)
	oldest, err := ledger.CreateTopic(ctx, "Older quiet topic", "older-quiet-topic", older)
	require.NoError(t, err)
	popular, err := ledger.CreateTopic(ctx, "Popular old topic", "popular-old-topic", older)
	require.NoError(t, err)
	_, err = ledger.CreateTopic(ctx, "Fresh topic", "fresh-topic", testAt)
	require.NoError(t, err)

	_, err = ledger.GetOrCreateIdentity(ctx, "tok", older)
	require.NoError(t, err)
	_, err = ledger.ApplyVote(ctx, domain.VoteApplication{
		TopicID: popular.ID, Token: "tok", Sentiment: domain.SentimentUp, At: older, Counted: true,
	})
	require.NoError(t, err)

	createdBefore := testAt.Add(-30 * 24 * time.Hour)
	candidates, err := ledger.PurgeCandidates(ctx, createdBefore, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, oldest.ID, candidates[0].ID)
	assert.Equal(t, newer.ID, candidates[1].ID)
}

func TestMarkPurged(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()

	topic, err := ledger.CreateTopic(ctx, "Pineapple on pizza", "pineapple-on-pizza", testAt)
	require.NoError(t, err)

	require.NoError(t, ledger.MarkPurged(ctx, topic.ID))
	got, err := ledger.GetTopicBySlug(ctx, "pineapple-on-pizza")
	require.NoError(t, err)
	assert.Equal(t, domain.TopicPurged, got.Status)

	// Idempotent for known topics, ErrTopicNotFound for unknown ones.
	require.NoError(t, ledger.MarkPurged(ctx, topic.ID))
	assert.ErrorIs(t, ledger.MarkPurged(ctx, uuid.New()), domain.ErrTopicNotFound)
}
