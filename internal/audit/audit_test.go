package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
)

func TestRecorderPersistsEnrichedEntries(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{ID: "doc-1", Role: clinic.RoleDoctor})

	err := rec.Record(ctx, "medical.read", "pat-1", "role", map[string]any{"path": "/api/users/pat-1/medical-history"})
	require.NoError(t, err)
	err = rec.Record(ctx, "medical.write", "pat-1", "role", nil)
	require.NoError(t, err)
	err = rec.Record(ctx, "medical.read", "pat-2", "role", nil)
	require.NoError(t, err)

	entries, err := rec.Report(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "doc-1", e.ActorID)
		assert.Equal(t, "doctor", e.ActorRole)
		assert.Equal(t, "req-1", e.RequestID)
		assert.Equal(t, "pat-1", e.SubjectID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.OccurredAt.IsZero())
	}
}

func TestRecorderWithoutStore(t *testing.T) {
	rec := NewRecorder(nil)
	require.NoError(t, rec.Record(context.Background(), "login", "u-1", "self", nil))
	entries, err := rec.Report(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(WithRequestID(ctx, "   ")))
	assert.Equal(t, "req-9", RequestIDFromContext(WithRequestID(ctx, "req-9")))
}
