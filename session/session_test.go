package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(index int, role, content string) Turn {
	return Turn{Index: index, Role: role, Content: content, Timestamp: time.Unix(int64(1000+index), 0)}
}

func TestMemoryStoreAppendIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "hello")))
	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "hello retried")))
	require.NoError(t, s.Append(ctx, "s1", turn(1, RoleAssistant, "hi there")))

	rec, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Turns, 2)
	// The first write wins; the retry is dropped.
	assert.Equal(t, "hello", rec.Turns[0].Content)
	assert.Equal(t, 1, rec.LastIndex)
	assert.Equal(t, 2, rec.NextIndex())
}

func TestMemoryStoreOutOfOrderAppend(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(1, RoleAssistant, "answer")))
	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "question")))

	rec, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, []int{rec.Turns[0].Index, rec.Turns[1].Index})
}

func TestMemoryStoreGetAbsent(t *testing.T) {
	s := NewMemoryStore()
	rec, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := NewMemoryStore(func(o *MemoryStoreOptions) {
		o.TTL = time.Minute
		o.Clock = func() time.Time { return now }
	})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "hello")))

	now = now.Add(2 * time.Minute)
	rec, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, rec, "expired session reads as absent")

	// A new turn on the same id starts a fresh history.
	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "fresh start")))
	rec, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Turns, 1)
	assert.Equal(t, "fresh start", rec.Turns[0].Content)
}

func TestMemoryStoreSlidingTTL(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := NewMemoryStore(func(o *MemoryStoreOptions) {
		o.TTL = time.Minute
		o.Clock = func() time.Time { return now }
	})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(0, RoleUser, "hello")))

	// Reads keep pushing the deadline out.
	for i := 0; i < 3; i++ {
		now = now.Add(45 * time.Second)
		rec, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, rec, "read %d refreshed the ttl", i)
	}
}

func TestSummarizeIfNeededKeepsRecentVerbatim(t *testing.T) {
	s := NewMemoryStore(func(o *MemoryStoreOptions) {
		o.Policy = Policy{MaxTurns: 6, KeepRecent: 3}
	})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, s.Append(ctx, "s1", turn(i, role, "turn content "+string(rune('a'+i)))))
	}

	before, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	wantTail := before.Turns[len(before.Turns)-3:]

	var agedSeen []Turn
	err = s.SummarizeIfNeeded(ctx, "s1", func(ctx context.Context, prev string, aged []Turn) (string, error) {
		agedSeen = aged
		return "condensed history", nil
	})
	require.NoError(t, err)

	after, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "condensed history", after.Summary)
	assert.Equal(t, wantTail, after.Turns, "recent turns survive byte-identical")
	assert.Len(t, agedSeen, 5)
	assert.Equal(t, 7, after.LastIndex, "indices survive compaction")

	// Under the threshold now: a second pass is a no-op.
	err = s.SummarizeIfNeeded(ctx, "s1", func(ctx context.Context, prev string, aged []Turn) (string, error) {
		t.Fatal("should not summarize below threshold")
		return "", nil
	})
	require.NoError(t, err)
}

func TestSummarizeFailureLeavesRecordUntouched(t *testing.T) {
	s := NewMemoryStore(func(o *MemoryStoreOptions) {
		o.Policy = Policy{MaxTurns: 2, KeepRecent: 1}
	})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(ctx, "s1", turn(i, RoleUser, "c")))
	}
	before, _ := s.Get(ctx, "s1")

	err := s.SummarizeIfNeeded(ctx, "s1", func(ctx context.Context, prev string, aged []Turn) (string, error) {
		return "", errors.New("reasoner down")
	})
	require.Error(t, err)

	after, _ := s.Get(ctx, "s1")
	assert.Equal(t, before.Turns, after.Turns)
	assert.Empty(t, after.Summary)
}

func TestRenderContext(t *testing.T) {
	assert.Empty(t, RenderContext(nil))

	rec := NewRecord("s1", time.Now())
	rec.Summary = "User wants fantasy books for a child."
	rec.insertTurn(turn(8, RoleUser, "anything under $20?"))
	rec.insertTurn(turn(9, RoleAssistant, "Yes, two options."))

	out := RenderContext(rec)
	assert.Contains(t, out, "Previous conversation summary:")
	assert.Contains(t, out, "fantasy books")
	assert.Contains(t, out, "user: anything under $20?")
	assert.Contains(t, out, "assistant: Yes, two options.")
}

func TestRecordHasTurnAfterCompaction(t *testing.T) {
	rec := NewRecord("s1", time.Now())
	for i := 0; i < 6; i++ {
		rec.insertTurn(turn(i, RoleUser, "c"))
	}
	_, err := compact(context.Background(), rec, Policy{MaxTurns: 4, KeepRecent: 2}, func(ctx context.Context, prev string, aged []Turn) (string, error) {
		return "sum", nil
	})
	require.NoError(t, err)

	// Compacted-away indices still count as present: re-appending them is
	// a no-op.
	assert.True(t, rec.HasTurn(0))
	assert.False(t, rec.insertTurn(turn(0, RoleUser, "replay")))
	assert.Len(t, rec.Turns, 2)
}
