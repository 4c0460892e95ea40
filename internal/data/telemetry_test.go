package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToSample(t *testing.T) {
	created := time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC)
	sampled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ceilometer resource document", func(t *testing.T) {
		sample, err := toSample(bson.M{
			"_id":        "vm-1",
			"project_id": "p1",
			"timestamp":  primitive.NewDateTimeFromTime(sampled),
			"metadata": bson.M{
				"vcpus":      int32(2),
				"memory_mb":  int64(1024),
				"created_at": "2026-03-01T11:58:00Z",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "p1", sample.ProjectID)
		assert.Equal(t, "vm-1", sample.ResourceID)
		assert.Equal(t, int64(2), sample.VCPUs)
		assert.Equal(t, int64(1024), sample.MemoryMB)
		require.NotNil(t, sample.CreatedAt)
		assert.True(t, created.Equal(*sample.CreatedAt))
		assert.True(t, sampled.Equal(sample.Timestamp))
	})

	t.Run("string metadata and fallback timestamp", func(t *testing.T) {
		sample, err := toSample(bson.M{
			"_id":                   primitive.NewObjectID(),
			"resource_id":           "vm-2",
			"project_id":            "p1",
			"last_sample_timestamp": "2026-03-01 12:00:00.000000",
			"metadata": bson.D{
				{Key: "vcpus", Value: "4"},
				{Key: "memory_mb", Value: float64(2048)},
				{Key: "created_at", Value: "2026-03-01 11:58:00"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "vm-2", sample.ResourceID)
		assert.Equal(t, int64(4), sample.VCPUs)
		assert.Equal(t, int64(2048), sample.MemoryMB)
		require.NotNil(t, sample.CreatedAt)
		assert.True(t, created.Equal(*sample.CreatedAt))
		assert.True(t, sampled.Equal(sample.Timestamp))
	})

	t.Run("missing created_at leaves it nil", func(t *testing.T) {
		sample, err := toSample(bson.M{
			"_id":        "vm-3",
			"project_id": "p1",
			"timestamp":  sampled,
			"metadata":   bson.M{"vcpus": int32(1)},
		})
		require.NoError(t, err)
		assert.Nil(t, sample.CreatedAt)
		assert.Equal(t, int64(1), sample.VCPUs)
	})

	t.Run("missing timestamp is malformed", func(t *testing.T) {
		_, err := toSample(bson.M{"_id": "vm-4", "project_id": "p1"})
		assert.Error(t, err)
	})

	t.Run("unparseable values", func(t *testing.T) {
		assert.Zero(t, intOf("many"))
		assert.Zero(t, intOf(nil))
		_, ok := timeOf("yesterday")
		assert.False(t, ok)
	})
}
