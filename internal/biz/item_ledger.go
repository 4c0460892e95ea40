package biz

import (
	"context"
	"time"

	"project-billing/internal/constants"
	"project-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// BillableItem 计费项
type BillableItem struct {
	ID        string
	Name      string
	Deleted   bool
	CreatedAt time.Time
}

// ItemRecord 项目计费项记录（一个价格纪元）
// 有效区间为 [CreatedAt, RetiredAt)，RetiredAt 为 nil 表示当前纪元。
// Used = Baseline + 纪元开始后按 Price 计的用量，Baseline 为纪元开始前已结算的部分。
type ItemRecord struct {
	ID        string
	ProjectID string
	ItemID    string
	ItemName  string
	Used      int64
	Baseline  int64
	Price     int64
	Until     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RetiredAt *time.Time
}

// Active 是否为当前价格纪元
func (r *ItemRecord) Active() bool {
	return r.RetiredAt == nil
}

// ItemRecordRepo 计费项账本数据层接口
type ItemRecordRepo interface {
	GetItemByName(ctx context.Context, name string) (*BillableItem, error)
	CreateItem(ctx context.Context, name string) (*BillableItem, error)
	ListItems(ctx context.Context) ([]*BillableItem, error)

	// GetActiveItemRecord 获取当前纪元记录（事务内加行锁），不存在返回 ErrItemRecordNotFound
	GetActiveItemRecord(ctx context.Context, projectID, itemName string) (*ItemRecord, error)
	GetItemRecord(ctx context.Context, recordID string) (*ItemRecord, error)
	ListItemRecords(ctx context.Context, projectID, itemName string, retired bool) ([]*ItemRecord, error)
	CreateItemRecord(ctx context.Context, record *ItemRecord) error
	UpdateItemRecord(ctx context.Context, record *ItemRecord) error
	RetireItemRecord(ctx context.Context, recordID string, at time.Time) error

	SumUsage(ctx context.Context, projectID string, retired bool) (int64, error)
}

// ItemLedger 项目计费项账本
type ItemLedger struct {
	repo    ItemRecordRepo
	catalog *PriceCatalog
	conf    *BillingConfig
	log     *log.Helper
	metrics *metrics.BillingMetrics
	now     func() time.Time
}

// NewItemLedger 创建计费项账本
func NewItemLedger(repo ItemRecordRepo, catalog *PriceCatalog, conf *BillingConfig, logger log.Logger) *ItemLedger {
	return &ItemLedger{
		repo:    repo,
		catalog: catalog,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ensureItem 获取或创建计费项
func (l *ItemLedger) ensureItem(ctx context.Context, name string) (*BillableItem, error) {
	item, err := l.repo.GetItemByName(ctx, name)
	if err == nil {
		return item, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return l.repo.CreateItem(ctx, name)
}

// UsageMeter 按 price 汇总样本在 (from, to] 内的费用
// from 为 nil 表示起点不截断，to 为 nil 表示终点不截断。
type UsageMeter func(price int64, from, to *time.Time) (float64, error)

// RecordUsage 写入本次对账的计费项用量，返回写入后的记录和本次计入当前纪元的费用
// 只支持整数计费，写入前截断小数部分。
//   - 无当前纪元记录：有用量时创建，now 之前的用量全部记入 Baseline
//   - 目录价未变：used = Baseline + 纪元开始后的费用，原地更新
//   - 目录价变化：当前纪元按旧价结算到 now 后关闭，新纪元只计 now 之后的用量
func (l *ItemLedger) RecordUsage(ctx context.Context, projectID, itemName string, meter UsageMeter) (*ItemRecord, float64, error) {
	item, err := l.ensureItem(ctx, itemName)
	if err != nil {
		return nil, 0, err
	}

	price := l.catalog.DefaultPrice(itemName)
	now := l.now()

	resolved, err := l.catalog.ResolvePrice(ctx, projectID, itemName)
	if err != nil {
		return nil, 0, err
	}
	current := resolved.Record
	if current == nil {
		charge, err := meter(price, nil, &now)
		if err != nil {
			return nil, 0, err
		}
		used := int64(charge)
		if used == 0 {
			return nil, charge, nil
		}
		record, err := l.openEpoch(ctx, projectID, item, used, used, price, now)
		return record, charge, err
	}

	if current.Price == price {
		charge, err := meter(current.Price, resolved.LockedAt, nil)
		if err != nil {
			return nil, 0, err
		}
		if err := l.settle(ctx, current, charge, now); err != nil {
			return nil, 0, err
		}
		l.observe(itemName, constants.LedgerOpUpdate)
		l.log.Debugf("item record updated: project=%s, item=%s, used=%d", projectID, itemName, current.Used)
		return current, charge, nil
	}

	final, err := meter(current.Price, resolved.LockedAt, &now)
	if err != nil {
		return nil, 0, err
	}
	if err := l.settle(ctx, current, final, now); err != nil {
		return nil, 0, err
	}
	if err := l.repo.RetireItemRecord(ctx, current.ID, now); err != nil {
		return nil, 0, err
	}
	l.observe(itemName, constants.LedgerOpRetire)
	l.log.Infof("item record retired on price change: project=%s, item=%s, old_price=%d, new_price=%d, used=%d",
		projectID, itemName, current.Price, price, current.Used)

	charge, err := meter(price, &now, nil)
	if err != nil {
		return nil, 0, err
	}
	record, err := l.openEpoch(ctx, projectID, item, int64(charge), 0, price, now)
	return record, charge, err
}

// settle 以 Baseline + charge 更新当前纪元，used 不回退
func (l *ItemLedger) settle(ctx context.Context, current *ItemRecord, charge float64, now time.Time) error {
	used := current.Baseline + int64(charge)
	if used < current.Used {
		l.log.Warnf("item usage would decrease, keeping recorded value: project=%s, item=%s, recorded=%d, computed=%d",
			current.ProjectID, current.ItemName, current.Used, used)
		used = current.Used
	}
	current.Used = used
	current.UpdatedAt = now
	return l.repo.UpdateItemRecord(ctx, current)
}

func (l *ItemLedger) openEpoch(ctx context.Context, projectID string, item *BillableItem, used, baseline, price int64, now time.Time) (*ItemRecord, error) {
	record := &ItemRecord{
		ProjectID: projectID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		Used:      used,
		Baseline:  baseline,
		Price:     price,
		Until:     now.Add(l.conf.ItemPeriod),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.CreateItemRecord(ctx, record); err != nil {
		return nil, err
	}
	l.observe(item.Name, constants.LedgerOpCreate)
	l.log.Infof("item record created: project=%s, item=%s, price=%d, used=%d", projectID, item.Name, price, used)
	return record, nil
}

// LifetimeUsage 项目全部纪元（当前 + 已关闭）的累计用量
func (l *ItemLedger) LifetimeUsage(ctx context.Context, projectID string) (int64, error) {
	live, err := l.repo.SumUsage(ctx, projectID, false)
	if err != nil {
		return 0, err
	}
	retired, err := l.repo.SumUsage(ctx, projectID, true)
	if err != nil {
		return 0, err
	}
	return live + retired, nil
}

func (l *ItemLedger) observe(item, op string) {
	if l.metrics != nil {
		l.metrics.LedgerWriteTotal.WithLabelValues(item, op).Inc()
	}
}
