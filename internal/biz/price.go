package biz

import (
	"context"
	"time"

	"project-billing/internal/constants"
)

// ResolvedPrice 项目当前生效单价
// LockedAt 为当前价格纪元的开始时间，nil 表示使用目录默认价（未锁定）
type ResolvedPrice struct {
	Price    int64
	LockedAt *time.Time
	Record   *ItemRecord // 当前纪元记录，未锁定时为 nil
}

// PriceCatalog 价格目录：配置默认价 + 项目计费项记录锁定价
type PriceCatalog struct {
	conf *BillingConfig
	repo ItemRecordRepo
}

// NewPriceCatalog 创建价格目录
func NewPriceCatalog(conf *BillingConfig, repo ItemRecordRepo) *PriceCatalog {
	return &PriceCatalog{conf: conf, repo: repo}
}

// DefaultPrice 目录默认价，未配置的计费项价格为 0
func (c *PriceCatalog) DefaultPrice(item string) int64 {
	return c.conf.Prices[item]
}

// Supported 计费项是否在计费列表中
func (c *PriceCatalog) Supported(item string) bool {
	for _, name := range c.conf.SupportedItems {
		if name == item {
			return true
		}
	}
	return false
}

// ResolvePrice 解析项目计费项单价
// 存在有效计费项记录时返回其锁定价和创建时间，否则返回目录默认价。
// 记录不存在不视为错误，只有账本存储故障才返回 error。
func (c *PriceCatalog) ResolvePrice(ctx context.Context, projectID, item string) (*ResolvedPrice, error) {
	record, err := c.repo.GetActiveItemRecord(ctx, projectID, item)
	if err != nil {
		if IsNotFound(err) {
			return &ResolvedPrice{Price: c.DefaultPrice(item)}, nil
		}
		return nil, err
	}
	price := record.Price
	if price == 0 {
		price = c.DefaultPrice(item)
	}
	lockedAt := record.CreatedAt
	return &ResolvedPrice{Price: price, LockedAt: &lockedAt, Record: record}, nil
}

// ChargeableWindow 计算样本窗口内可按当前价格计费的秒数
// 样本结束早于价格锁定时间时返回 skip=true；锁定时间落在窗口内部时窗口起点截到锁定时间。
func ChargeableWindow(start, end time.Time, lockedAt *time.Time) (seconds float64, skip bool) {
	effectiveStart := start
	if lockedAt != nil {
		if end.Before(*lockedAt) {
			return 0, true
		}
		if start.Before(*lockedAt) && end.After(*lockedAt) {
			effectiveStart = *lockedAt
		}
	}
	seconds = end.Sub(effectiveStart).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return seconds, false
}

// UsageCalculator 用量计价
type UsageCalculator struct {
	minSeconds float64
}

// NewUsageCalculator 创建计价器
func NewUsageCalculator() *UsageCalculator {
	return &UsageCalculator{minSeconds: constants.MinBillableSeconds}
}

// Charge 按计费项公式计算费用
//   cpu:    quantity * seconds * price / 60
//   memory: floor(quantity / 512) * seconds * price / 60
// 不足一分钟按一分钟计。其他计费项费用为 0 并返回 ErrUnsupportedItem。
func (c *UsageCalculator) Charge(item string, quantity int64, seconds float64, price int64) (float64, error) {
	if seconds < c.minSeconds {
		seconds = c.minSeconds
	}
	switch item {
	case constants.ItemCPU:
		return float64(quantity) * seconds * float64(price) / 60, nil
	case constants.ItemMemory:
		blocks := quantity / constants.MemoryBlockMB
		return float64(blocks) * seconds * float64(price) / 60, nil
	default:
		return 0, ErrUnsupportedItem
	}
}
