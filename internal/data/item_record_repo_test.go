package data

import (
	"context"
	"testing"
	"time"

	"project-billing/internal/biz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRecordRepo(t *testing.T) {
	d, _ := setupTestData(t)
	ctx := context.Background()
	repo := NewItemRecordRepo(d, testLogger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.GetActiveItemRecord(ctx, "p1", "cpu")
	assert.True(t, biz.IsNotFound(err), "unknown item has no record")

	item, err := repo.CreateItem(ctx, "cpu")
	require.NoError(t, err)
	_, err = repo.GetActiveItemRecord(ctx, "p1", "cpu")
	assert.True(t, biz.IsNotFound(err))

	first := &biz.ItemRecord{
		ProjectID: "p1", ItemID: item.ID, ItemName: "cpu",
		Used: 30, Baseline: 30, Price: 1, Until: now.Add(24 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateItemRecord(ctx, first))
	assert.NotEmpty(t, first.ID)

	t.Run("active record inside transaction", func(t *testing.T) {
		err := d.InTx(ctx, func(ctx context.Context) error {
			record, err := repo.GetActiveItemRecord(ctx, "p1", "cpu")
			if err != nil {
				return err
			}
			assert.Equal(t, first.ID, record.ID)
			assert.Equal(t, "cpu", record.ItemName)
			assert.True(t, record.Active())
			record.Used = 35
			record.UpdatedAt = now.Add(time.Minute)
			return repo.UpdateItemRecord(ctx, record)
		})
		require.NoError(t, err)

		record, err := repo.GetItemRecord(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(35), record.Used)
		assert.Equal(t, int64(30), record.Baseline)
		assert.Equal(t, "cpu", record.ItemName)
	})

	t.Run("retire and open next epoch", func(t *testing.T) {
		retiredAt := now.Add(time.Hour)
		require.NoError(t, repo.RetireItemRecord(ctx, first.ID, retiredAt))
		assert.True(t, biz.IsNotFound(repo.RetireItemRecord(ctx, first.ID, retiredAt)), "already retired")

		second := &biz.ItemRecord{
			ProjectID: "p1", ItemID: item.ID, ItemName: "cpu",
			Used: 6, Price: 2, Until: retiredAt.Add(24 * time.Hour), CreatedAt: retiredAt, UpdatedAt: retiredAt,
		}
		require.NoError(t, repo.CreateItemRecord(ctx, second))

		active, err := repo.GetActiveItemRecord(ctx, "p1", "cpu")
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)
		assert.Equal(t, int64(2), active.Price)

		old, err := repo.GetItemRecord(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, old.Active())

		live, err := repo.SumUsage(ctx, "p1", false)
		require.NoError(t, err)
		retired, err := repo.SumUsage(ctx, "p1", true)
		require.NoError(t, err)
		assert.Equal(t, int64(6), live)
		assert.Equal(t, int64(35), retired)

		history, err := repo.ListItemRecords(ctx, "p1", "cpu", true)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, first.ID, history[0].ID)
	})

	t.Run("sum of unknown project is zero", func(t *testing.T) {
		total, err := repo.SumUsage(ctx, "nobody", false)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("list records of unknown item is empty", func(t *testing.T) {
		records, err := repo.ListItemRecords(ctx, "p1", "disk", false)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("list items", func(t *testing.T) {
		_, err := repo.CreateItem(ctx, "memory")
		require.NoError(t, err)
		items, err := repo.ListItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "cpu", items[0].Name)
		assert.Equal(t, "memory", items[1].Name)
	})

	t.Run("update missing record", func(t *testing.T) {
		err := repo.UpdateItemRecord(ctx, &biz.ItemRecord{ID: "missing"})
		assert.True(t, biz.IsNotFound(err))
	})
}
