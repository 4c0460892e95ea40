package biz

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"project-billing/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageCalculator_Charge(t *testing.T) {
	calc := NewUsageCalculator()

	tests := []struct {
		name     string
		item     string
		quantity int64
		seconds  float64
		price    int64
		want     float64
	}{
		{name: "two vcpus for two minutes", item: constants.ItemCPU, quantity: 2, seconds: 120, price: 1, want: 4},
		{name: "cpu price scales linearly", item: constants.ItemCPU, quantity: 2, seconds: 120, price: 3, want: 12},
		{name: "short window billed as one minute", item: constants.ItemCPU, quantity: 1, seconds: 10, price: 1, want: 1},
		{name: "fractional minutes kept", item: constants.ItemCPU, quantity: 1, seconds: 90, price: 1, want: 1.5},
		{name: "memory in 512MB blocks", item: constants.ItemMemory, quantity: 2048, seconds: 120, price: 1, want: 8},
		{name: "partial memory block ignored", item: constants.ItemMemory, quantity: 1000, seconds: 60, price: 1, want: 1},
		{name: "memory below one block is free", item: constants.ItemMemory, quantity: 256, seconds: 600, price: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Charge(tt.item, tt.quantity, tt.seconds, tt.price)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("unsupported item charges zero", func(t *testing.T) {
		got, err := calc.Charge("disk", 100, 600, 5)
		assert.True(t, stderrors.Is(err, ErrUnsupportedItem))
		assert.Zero(t, got)
	})
}

func TestChargeableWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	t.Run("no lock uses full window", func(t *testing.T) {
		seconds, skip := ChargeableWindow(start, end, nil)
		assert.False(t, skip)
		assert.Equal(t, 600.0, seconds)
	})

	t.Run("lock before window uses full window", func(t *testing.T) {
		lock := start.Add(-time.Hour)
		seconds, skip := ChargeableWindow(start, end, &lock)
		assert.False(t, skip)
		assert.Equal(t, 600.0, seconds)
	})

	t.Run("lock inside window clips start", func(t *testing.T) {
		lock := start.Add(4 * time.Minute)
		seconds, skip := ChargeableWindow(start, end, &lock)
		assert.False(t, skip)
		assert.Equal(t, 360.0, seconds)
	})

	t.Run("window ending before lock is skipped", func(t *testing.T) {
		lock := end.Add(time.Second)
		seconds, skip := ChargeableWindow(start, end, &lock)
		assert.True(t, skip)
		assert.Zero(t, seconds)
	})
}

func TestPriceCatalog_ResolvePrice(t *testing.T) {
	ctx := context.Background()
	conf := NewBillingConfig(nil)
	repo := newMemItemRepo()
	catalog := NewPriceCatalog(conf, repo)

	t.Run("default price without record", func(t *testing.T) {
		price, err := catalog.ResolvePrice(ctx, "p1", constants.ItemCPU)
		require.NoError(t, err)
		assert.Equal(t, constants.DefaultItemPrice, price.Price)
		assert.Nil(t, price.LockedAt)
		assert.Nil(t, price.Record)
	})

	t.Run("locked price from active record", func(t *testing.T) {
		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.CreateItemRecord(ctx, &ItemRecord{
			ProjectID: "p1", ItemName: constants.ItemCPU, Price: 2, CreatedAt: created,
		}))
		price, err := catalog.ResolvePrice(ctx, "p1", constants.ItemCPU)
		require.NoError(t, err)
		assert.Equal(t, int64(2), price.Price)
		require.NotNil(t, price.LockedAt)
		assert.True(t, created.Equal(*price.LockedAt))
		require.NotNil(t, price.Record)
		assert.Equal(t, int64(2), price.Record.Price)
	})

	t.Run("storage error propagates", func(t *testing.T) {
		broken := newMemItemRepo()
		broken.getErr = stderrors.New("connection refused")
		_, err := NewPriceCatalog(conf, broken).ResolvePrice(ctx, "p1", constants.ItemCPU)
		assert.Error(t, err)
	})

	t.Run("unknown item has zero default price", func(t *testing.T) {
		assert.Zero(t, catalog.DefaultPrice("disk"))
		assert.False(t, catalog.Supported("disk"))
		assert.True(t, catalog.Supported(constants.ItemMemory))
	})
}
