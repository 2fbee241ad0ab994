package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrelay/internal/domain/entity"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListAll_EmptyStore(t *testing.T) {
	s := openTestStore(t)

	subs, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs, "empty store is a valid result, not an error")
}

func TestUpsertThenListAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user-1", true, []string{"go", "llm"}))
	require.NoError(t, s.Upsert(ctx, "user-2", true, nil))

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)

	want := map[string]entity.Subscriber{
		"user-1": {RecipientID: "user-1", Subscribed: true, Keywords: []string{"go", "llm"}},
		"user-2": {RecipientID: "user-2", Subscribed: true, Keywords: []string{}},
	}
	if diff := cmp.Diff(want, subs); diff != "" {
		t.Errorf("ListAll mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_UpdatesExistingRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user-1", true, []string{"go"}))
	require.NoError(t, s.Upsert(ctx, "user-1", false, []string{"rust", "zig"}))

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	got := subs["user-1"]
	assert.False(t, got.Subscribed)
	assert.Equal(t, []string{"rust", "zig"}, got.Keywords)
}

func TestUpsert_NormalizesKeywords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user-1", true, []string{" Go ", "GO", "", "LLM"}))

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "llm"}, subs["user-1"].Keywords)
}

func TestUnsubscribeKeepsKeywordHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user-1", true, []string{"go"}))
	require.NoError(t, s.Upsert(ctx, "user-1", false, []string{"go"}))

	subs, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Contains(t, subs, "user-1", "unsubscribing must not delete the record")
	assert.False(t, subs["user-1"].Subscribed)
	assert.Equal(t, []string{"go"}, subs["user-1"].Keywords)
}

func TestListAll_SkipsRowWithMalformedTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user-1", true, []string{"go"}))
	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO subscribers (recipient_id, subscribed, tags, created_at, updated_at)
		 VALUES ('corrupt', 1, 'not json', 0, 0)`)
	require.NoError(t, err)

	subs, err := s.ListAll(ctx)
	require.NoError(t, err, "one corrupt row must not fail the listing")
	require.Contains(t, subs, "user-1")
	assert.NotContains(t, subs, "corrupt")
}
