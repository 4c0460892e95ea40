package data

import (
	"context"
	"testing"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepo(t *testing.T) {
	d, _ := setupTestData(t)
	ctx := context.Background()
	repo := NewEventRepo(d, testLogger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &biz.ExhaustionEvent{
		ProjectID: "p1", Reason: "expired", Amount: 1000, Used: 10,
		Until: now.Add(-time.Hour), OccurredAt: now.Add(-time.Hour),
	}
	newer := &biz.ExhaustionEvent{
		ProjectID: "p1", Reason: "balance", Amount: 1000, Used: 1200, Until: now.Add(time.Hour),
		UsersZeroed: 2, ProjectZeroed: true, Instances: []string{"vm-1", "vm-2"}, OccurredAt: now,
	}
	require.NoError(t, repo.CreateExhaustionEvent(ctx, older))
	require.NoError(t, repo.CreateExhaustionEvent(ctx, newer))
	assert.NotEmpty(t, newer.ID)

	t.Run("redelivered event stored once", func(t *testing.T) {
		require.NoError(t, repo.CreateExhaustionEvent(ctx, newer))
		events, err := repo.ListExhaustionEvents(ctx, "p1", 10)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("newest first with instances", func(t *testing.T) {
		events, err := repo.ListExhaustionEvents(ctx, "p1", 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, newer.ID, events[0].ID)
		assert.Equal(t, []string{"vm-1", "vm-2"}, events[0].Instances)
		assert.Empty(t, events[0].InstancesDeleted)
		assert.True(t, events[0].ProjectZeroed)
		assert.Equal(t, "expired", events[1].Reason)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := repo.ListExhaustionEvents(ctx, "p1", 1)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("other project", func(t *testing.T) {
		events, err := repo.ListExhaustionEvents(ctx, "p2", 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestEventPublisher_Disabled(t *testing.T) {
	d, _ := setupTestData(t)
	ctx := context.Background()
	repo := NewEventRepo(d, testLogger)

	publisher, cleanup, err := NewEventPublisher(&conf.Bootstrap{Data: &conf.Data{}}, repo, testLogger)
	require.NoError(t, err)
	defer cleanup()

	event := &biz.ExhaustionEvent{ProjectID: "p1", Reason: "balance", Until: time.Now(), OccurredAt: time.Now()}
	require.NoError(t, publisher.PublishExhausted(ctx, event))
	assert.NotEmpty(t, event.ID)

	events, err := repo.ListExhaustionEvents(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
}
