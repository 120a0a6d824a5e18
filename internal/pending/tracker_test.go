package pending

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

// exerciseTracker checks the behaviour every Tracker shares.
func exerciseTracker(t *testing.T, tr Tracker) {
	ctx := context.Background()
	userID := time.Now().UnixNano()
	paymentID := uuid.NewString()

	_, ok, err := tr.TakeWait(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	wait := chat.MessageRef{ChatID: userID, MessageID: 77}
	require.NoError(t, tr.SetWait(ctx, userID, wait))
	got, ok, err := tr.TakeWait(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, wait, got)

	_, ok, err = tr.TakeWait(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok, "second take must miss")

	require.NoError(t, tr.SetOwner(ctx, paymentID, userID))
	owner, ok, err := tr.TakeOwner(ctx, paymentID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, owner)
	_, ok, err = tr.TakeOwner(ctx, paymentID)
	require.NoError(t, err)
	assert.False(t, ok)

	a1 := chat.MessageRef{ChatID: 1, MessageID: 10}
	a2 := chat.MessageRef{ChatID: -1002, MessageID: 20}
	require.NoError(t, tr.AddAdminMessage(ctx, paymentID, a1))
	require.NoError(t, tr.AddAdminMessage(ctx, paymentID, a2))
	refs, err := tr.TakeAdminMessages(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, []chat.MessageRef{a1, a2}, refs)

	refs, err = tr.TakeAdminMessages(ctx, paymentID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestMemoryTracker(t *testing.T) {
	exerciseTracker(t, NewMemory())
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_TEST_DB"))

	rdb, err := NewRedisClient(context.Background(), addr, os.Getenv("REDIS_TEST_PASSWORD"), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseTracker(t, NewRedis(rdb, time.Minute))
}

func TestRefEncoding(t *testing.T) {
	ref := chat.MessageRef{ChatID: -1001234567890, MessageID: 42}
	got, err := decodeRef(encodeRef(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	for _, bad := range []string{"", "12", "a:1", "1:b"} {
		_, err := decodeRef(bad)
		assert.Error(t, err, bad)
	}
}
