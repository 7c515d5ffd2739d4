package dao

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessRequestDAO_UpsertKeepsOneRowPerFingerprint(t *testing.T) {
	ctx := context.Background()
	d := NewAccessRequestDAO(newTestDB(t))

	record, err := d.Upsert(ctx, AccessRequest{ReferenceID: "fp-1", Decision: "DENIED", Reason: "gate unreachable"})
	require.NoError(t, err)
	require.False(t, record.CreatedAt.IsZero())

	// A later decision for the same fingerprint replaces the row.
	_, err = d.Upsert(ctx, AccessRequest{ReferenceID: "fp-1", Decision: "GRANTED", Amount: 100})
	require.NoError(t, err)

	found, err := d.FindByReference(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, "GRANTED", found.Decision)
	require.Equal(t, int64(100), found.Amount)
	require.Empty(t, found.Reason)

	records, err := d.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestAccessRequestDAO_FindMissing(t *testing.T) {
	d := NewAccessRequestDAO(newTestDB(t))

	_, err := d.FindByReference(context.Background(), "fp-unknown")
	require.ErrorIs(t, err, ErrAccessRequestNotFound)
}

func TestAccessRequestDAO_ListRecent(t *testing.T) {
	ctx := context.Background()
	d := NewAccessRequestDAO(newTestDB(t))

	for _, ref := range []string{"fp-1", "fp-2", "fp-3"} {
		_, err := d.Upsert(ctx, AccessRequest{ReferenceID: ref, Decision: "DENIED"})
		require.NoError(t, err)
	}

	records, err := d.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
