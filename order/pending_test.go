package order

import (
	"testing"
	"time"

	"github.com/dawoonj/krwbot/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*PendingStore, *time.Time) {
	t.Helper()
	store, err := NewPendingStore(5 * time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	return store, &clock
}

func newDraft(token, userID string) Draft {
	return Draft{
		Token:       token,
		UserID:      userID,
		ChannelID:   "dm-" + userID,
		ChannelKind: "im",
		Kind:        DraftKindOrder,
		Market:      "KRW-BTC",
		Side:        core.SideTypeBuy,
		OrdType:     core.OrdTypePrice,
		Amount:      100_000,
	}
}

func TestRegisterAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Register(newDraft("tok1", "u1")))

	draft, ok := store.Get("tok1")
	require.True(t, ok)
	assert.Equal(t, "u1", draft.UserID)
	assert.Equal(t, 100_000.0, draft.Amount)
	assert.False(t, draft.CreatedAt.IsZero())

	token, ok := store.TokenFor("u1")
	require.True(t, ok)
	assert.Equal(t, "tok1", token)

	_, ok = store.Get("missing")
	assert.False(t, ok)
	_, ok = store.TokenFor("u2")
	assert.False(t, ok)
}

func TestRegisterSupersedesPriorDraft(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Register(newDraft("tok1", "u1")))
	require.NoError(t, store.Register(newDraft("tok2", "u1")))

	// The old token is dead; the user index points at the new draft.
	_, ok := store.Get("tok1")
	assert.False(t, ok)

	token, ok := store.TokenFor("u1")
	require.True(t, ok)
	assert.Equal(t, "tok2", token)
}

func TestCleanupExpired(t *testing.T) {
	store, clock := newTestStore(t)

	require.NoError(t, store.Register(newDraft("tok1", "u1")))

	// Just under the TTL the draft is still live.
	*clock = clock.Add(5 * time.Minute)
	require.NoError(t, store.CleanupExpired(*clock))
	_, ok := store.Get("tok1")
	assert.True(t, ok)

	*clock = clock.Add(time.Second)
	require.NoError(t, store.CleanupExpired(*clock))

	_, ok = store.Get("tok1")
	assert.False(t, ok)
	_, ok = store.TokenFor("u1")
	assert.False(t, ok)
}

func TestRegisterSweepsOtherUsersExpiredDrafts(t *testing.T) {
	store, clock := newTestStore(t)

	require.NoError(t, store.Register(newDraft("tok1", "u1")))

	*clock = clock.Add(6 * time.Minute)
	require.NoError(t, store.Register(newDraft("tok2", "u2")))

	_, ok := store.Get("tok1")
	assert.False(t, ok)
	_, ok = store.Get("tok2")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Register(newDraft("tok1", "u1")))
	require.NoError(t, store.Remove("tok1"))

	_, ok := store.Get("tok1")
	assert.False(t, ok)
	_, ok = store.TokenFor("u1")
	assert.False(t, ok)

	// Removing a token that never existed is a no-op.
	assert.NoError(t, store.Remove("missing"))
}

func TestNewTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token := NewToken()
		assert.Len(t, token, 8)
		assert.NotContains(t, token, "-")
		assert.False(t, seen[token], "token %q repeated", token)
		seen[token] = true
	}
}
