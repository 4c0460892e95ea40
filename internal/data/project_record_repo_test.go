package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"project-billing/internal/biz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRecordRepo(t *testing.T) {
	d, mr := setupTestData(t)
	ctx := context.Background()
	repo := NewProjectRecordRepo(d, testLogger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.GetProjectRecord(ctx, "p1")
	assert.True(t, biz.IsNotFound(err))

	record := &biz.ProjectRecord{
		ProjectID: "p1", Amount: 1000, Description: "Initial vdollar for project is 1000",
		Until: now.Add(24 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateProjectRecord(ctx, record))
	assert.NotEmpty(t, record.ID)

	t.Run("read populates cache", func(t *testing.T) {
		got, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
		assert.True(t, mr.Exists(cacheKey("p1")))

		cached, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), cached.Amount)
	})

	t.Run("update invalidates cache", func(t *testing.T) {
		got, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		got.Used = 400
		got.UpdatedAt = now.Add(time.Minute)
		require.NoError(t, repo.UpdateProjectRecord(ctx, got))
		assert.False(t, mr.Exists(cacheKey("p1")))

		fresh, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(400), fresh.Used)
	})

	t.Run("transaction reads bypass cache", func(t *testing.T) {
		// 缓存中放入过期数据，事务内仍读到库中的值
		_, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, mr.Set(cacheKey("p1"), `{"ID":"stale","ProjectID":"p1","Used":1}`))

		err = d.InTx(ctx, func(ctx context.Context) error {
			got, err := repo.GetProjectRecord(ctx, "p1")
			if err != nil {
				return err
			}
			assert.Equal(t, record.ID, got.ID)
			assert.Equal(t, int64(400), got.Used)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("cache is invalidated after commit", func(t *testing.T) {
		err := d.InTx(ctx, func(ctx context.Context) error {
			got, err := repo.GetProjectRecord(ctx, "p1")
			if err != nil {
				return err
			}
			got.Used = 450
			if err := repo.UpdateProjectRecord(ctx, got); err != nil {
				return err
			}
			// 事务外的读者在提交前缓存了旧行
			return mr.Set(cacheKey("p1"), `{"ID":"stale","ProjectID":"p1","Used":400}`)
		})
		require.NoError(t, err)
		assert.False(t, mr.Exists(cacheKey("p1")))

		fresh, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(450), fresh.Used)
	})

	t.Run("rolled back update keeps cache", func(t *testing.T) {
		_, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		require.True(t, mr.Exists(cacheKey("p1")))

		err = d.InTx(ctx, func(ctx context.Context) error {
			got, err := repo.GetProjectRecord(ctx, "p1")
			if err != nil {
				return err
			}
			got.Used = 9999
			if err := repo.UpdateProjectRecord(ctx, got); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)
		assert.True(t, mr.Exists(cacheKey("p1")))

		cached, err := repo.GetProjectRecord(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(450), cached.Used)
	})

	t.Run("delete hides record", func(t *testing.T) {
		require.NoError(t, repo.DeleteProjectRecord(ctx, record.ID, now.Add(time.Hour)))
		assert.False(t, mr.Exists(cacheKey("p1")))

		_, err := repo.GetProjectRecord(ctx, "p1")
		assert.True(t, biz.IsNotFound(err))

		byID, err := repo.GetProjectRecordByID(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, byID.Deleted)
		require.NotNil(t, byID.DeletedAt)

		deleted, err := repo.ListProjectRecords(ctx, true)
		require.NoError(t, err)
		assert.Len(t, deleted, 1)
		live, err := repo.ListProjectRecords(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, live)
	})

	t.Run("missing record", func(t *testing.T) {
		assert.True(t, biz.IsNotFound(repo.DeleteProjectRecord(ctx, "missing", now)))
		assert.True(t, biz.IsNotFound(repo.UpdateProjectRecord(ctx, &biz.ProjectRecord{ID: "missing"})))
	})
}

func TestProjectRecordRepo_WithoutRedis(t *testing.T) {
	d, _ := setupTestData(t)
	d.rdb = nil
	ctx := context.Background()
	repo := NewProjectRecordRepo(d, testLogger)

	record := &biz.ProjectRecord{ProjectID: "p1", Amount: 10, Until: time.Now().Add(time.Hour), CreatedAt: time.Now()}
	require.NoError(t, repo.CreateProjectRecord(ctx, record))
	got, err := repo.GetProjectRecord(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}
