package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seen.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestInsertIfAbsent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	inserted, err := store.InsertIfAbsent(ctx, "#town", "alice")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertIfAbsent(ctx, "#town", "alice")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate insert reports already existed")

	// same key in a different channel is a distinct record
	inserted, err = store.InsertIfAbsent(ctx, "#hall", "alice")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestExists(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "#town", "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.InsertIfAbsent(ctx, "#town", "alice")
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "#town", "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.InsertIfAbsent(ctx, "#town", "alice@h")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.Exists(ctx, "#town", "alice@h")
	require.NoError(t, err)
	assert.True(t, exists)

	inserted, err := reopened.InsertIfAbsent(ctx, "#town", "alice@h")
	require.NoError(t, err)
	assert.False(t, inserted, "replayed join after restart must not look new")
}

func TestConcurrentInsertIfAbsent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	const workers = 16
	results := make([]bool, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.InsertIfAbsent(ctx, "#town", "alice")
		}(i)
	}
	wg.Wait()

	newlyInserted := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i] {
			newlyInserted++
		}
	}
	assert.Equal(t, 1, newlyInserted, "exactly one writer wins the insert")
}

func TestKeysAndCounts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{
		{"#town", "carol"},
		{"#town", "alice"},
		{"#hall", "bob@h"},
	} {
		_, err := store.InsertIfAbsent(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	keys, err := store.Keys(ctx, "#town")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, keys)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ChannelCount{
		{Channel: "#hall", Count: 1},
		{Channel: "#town", Count: 2},
	}, counts)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "seen.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.InsertIfAbsent(context.Background(), "#town", "alice")
	assert.NoError(t, err)
}
