package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/ledger"
)

var sweepNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() domain.Policy {
	return domain.Policy{
		Cooldown:    72 * time.Hour,
		GraceWindow: 720 * time.Hour,
		VoteQuota:   100,
		Location:    time.UTC,
	}
}

func seedTopic(t *testing.T, mem *ledger.Memory, title, slug string, createdAt time.Time, votes int) *domain.Topic {
	t.Helper()
	ctx := context.Background()
	topic, err := mem.CreateTopic(ctx, title, slug, createdAt)
	require.NoError(t, err)
	for i := 0; i < votes; i++ {
		token := slug + "-voter-" + string(rune('a'+i))
		_, err := mem.GetOrCreateIdentity(ctx, token, createdAt)
		require.NoError(t, err)
		_, err = mem.ApplyVote(ctx, domain.VoteApplication{
			TopicID: topic.ID, Token: token, Sentiment: domain.SentimentUp, At: createdAt, Counted: true,
		})
		require.NoError(t, err)
	}
	return topic
}

func TestSweepPurgesUnderQuotaAfterGraceWindow(t *testing.T) {
	mem := ledger.NewMemory()
	clock := clockwork.NewFakeClockAt(sweepNow)
	policy := testPolicy()
	policy.VoteQuota = 3

	old := sweepNow.Add(-31 * 24 * time.Hour)
	seedTopic(t, mem, "Quiet old topic", "quiet-old-topic", old, 1)
	seedTopic(t, mem, "Popular old topic", "popular-old-topic", old, 3)
	seedTopic(t, mem, "Fresh topic", "fresh-topic", sweepNow.Add(-24*time.Hour), 0)

	var invalidated []string
	sweeper := NewSweeper(mem, clock, policy, func(slug string) {
		invalidated = append(invalidated, slug)
	})

	purged, err := sweeper.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet-old-topic"}, purged)
	assert.Equal(t, []string{"quiet-old-topic"}, invalidated)

	topic, err := mem.GetTopicBySlug(context.Background(), "quiet-old-topic")
	require.NoError(t, err)
	assert.Equal(t, domain.TopicPurged, topic.Status)

	// Topics at or above the quota and topics inside the window survive.
	topic, err = mem.GetTopicBySlug(context.Background(), "popular-old-topic")
	require.NoError(t, err)
	assert.Equal(t, domain.TopicActive, topic.Status)
	topic, err = mem.GetTopicBySlug(context.Background(), "fresh-topic")
	require.NoError(t, err)
	assert.Equal(t, domain.TopicActive, topic.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	mem := ledger.NewMemory()
	clock := clockwork.NewFakeClockAt(sweepNow)
	policy := testPolicy()

	old := sweepNow.Add(-31 * 24 * time.Hour)
	seedTopic(t, mem, "Quiet old topic", "quiet-old-topic", old, 0)

	sweeper := NewSweeper(mem, clock, policy, nil)

	purged, err := sweeper.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Len(t, purged, 1)

	purged, err = sweeper.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	assert.Empty(t, purged)
}

func TestSweepPurgesOldestFirst(t *testing.T) {
	mem := ledger.NewMemory()
	clock := clockwork.NewFakeClockAt(sweepNow)

	seedTopic(t, mem, "Newer quiet topic", "newer-quiet-topic", sweepNow.Add(-40*24*time.Hour), 0)
	seedTopic(t, mem, "Older quiet topic", "older-quiet-topic", sweepNow.Add(-60*24*time.Hour), 0)

	sweeper := NewSweeper(mem, clock, testPolicy(), nil)

	purged, err := sweeper.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"older-quiet-topic", "newer-quiet-topic"}, purged)
}

func TestRunnerSweepsOnSchedule(t *testing.T) {
	mem := ledger.NewMemory()
	clock := clockwork.NewFakeClockAt(sweepNow)

	old := sweepNow.Add(-31 * 24 * time.Hour)
	seedTopic(t, mem, "Quiet old topic", "quiet-old-topic", old, 0)

	sweeper := NewSweeper(mem, clock, testPolicy(), nil)
	runner := NewRunner(sweeper, nil, clock, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		topic, err := mem.GetTopicBySlug(context.Background(), "quiet-old-topic")
		return err == nil && topic.Status == domain.TopicPurged
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on context cancellation")
	}
}
