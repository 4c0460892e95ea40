package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// ProjectRecordPatch 项目账户可修改字段（nil 表示不修改）
type ProjectRecordPatch struct {
	Amount      *int64
	Used        *int64
	Description *string
	Until       *time.Time
}

func (p *ProjectRecordPatch) apply(r *ProjectRecord) {
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Used != nil {
		r.Used = *p.Used
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Until != nil {
		r.Until = *p.Until
	}
}

// ItemRecordPatch 计费项记录可修改字段，价格只能通过配置变更
type ItemRecordPatch struct {
	Used  *int64
	Until *time.Time
}

// AccountUseCase 账本管理（管理员接口）
type AccountUseCase struct {
	projects ProjectRecordRepo
	items    ItemRecordRepo
	events   EventRepo
	tx       Transaction
	ledger   *ProjectLedger
	catalog  *PriceCatalog
	log      *log.Helper
	now      func() time.Time
}

// NewAccountUseCase 创建账本管理 UseCase
// 修改类操作在事务内读写，读取绕过缓存并加行锁，与对账事务串行。
func NewAccountUseCase(projects ProjectRecordRepo, items ItemRecordRepo, events EventRepo, tx Transaction, ledger *ProjectLedger, catalog *PriceCatalog, logger log.Logger) *AccountUseCase {
	return &AccountUseCase{
		projects: projects,
		items:    items,
		events:   events,
		tx:       tx,
		ledger:   ledger,
		catalog:  catalog,
		log:      log.NewHelper(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListProjectRecords 所有有效项目账户
func (uc *AccountUseCase) ListProjectRecords(ctx context.Context) ([]*ProjectRecord, error) {
	return uc.projects.ListProjectRecords(ctx, false)
}

// GetProjectRecordByID 按记录 ID 获取项目账户
func (uc *AccountUseCase) GetProjectRecordByID(ctx context.Context, recordID string) (*ProjectRecord, error) {
	return uc.projects.GetProjectRecordByID(ctx, recordID)
}

// UpdateProjectRecordByID 按记录 ID 修改项目账户
func (uc *AccountUseCase) UpdateProjectRecordByID(ctx context.Context, recordID string, patch *ProjectRecordPatch) (*ProjectRecord, error) {
	var record *ProjectRecord
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = uc.projects.GetProjectRecordByID(ctx, recordID)
		if err != nil {
			return err
		}
		patch.apply(record)
		record.UpdatedAt = uc.now()
		return uc.projects.UpdateProjectRecord(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteProjectRecordByID 软删除项目账户
func (uc *AccountUseCase) DeleteProjectRecordByID(ctx context.Context, recordID string) error {
	if _, err := uc.projects.GetProjectRecordByID(ctx, recordID); err != nil {
		return err
	}
	return uc.projects.DeleteProjectRecord(ctx, recordID, uc.now())
}

// GetProjectRecord 获取项目有效账户
func (uc *AccountUseCase) GetProjectRecord(ctx context.Context, projectID string) (*ProjectRecord, error) {
	return uc.projects.GetProjectRecord(ctx, projectID)
}

// PutProjectRecord 修改项目账户，不存在时以默认值创建后再应用修改（充值 / 延期）
func (uc *AccountUseCase) PutProjectRecord(ctx context.Context, projectID string, patch *ProjectRecordPatch) (*ProjectRecord, error) {
	var (
		record  *ProjectRecord
		created bool
	)
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = uc.projects.GetProjectRecord(ctx, projectID)
		if err != nil {
			if !IsNotFound(err) {
				return err
			}
			record = uc.ledger.NewDefaultRecord(projectID)
			patch.apply(record)
			created = true
			return uc.projects.CreateProjectRecord(ctx, record)
		}
		patch.apply(record)
		record.UpdatedAt = uc.now()
		return uc.projects.UpdateProjectRecord(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	if created {
		uc.log.Infof("project record created by admin: project=%s, amount=%d", projectID, record.Amount)
	} else {
		uc.log.Infof("project record updated by admin: project=%s, amount=%d", projectID, record.Amount)
	}
	return record, nil
}

// ListProjectItemRecords 项目当前纪元的计费项记录（按计费项名称）
func (uc *AccountUseCase) ListProjectItemRecords(ctx context.Context, projectID string) (map[string]*ItemRecord, error) {
	records, err := uc.items.ListItemRecords(ctx, projectID, "", false)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*ItemRecord, len(records))
	for _, r := range records {
		result[r.ItemName] = r
	}
	return result, nil
}

// GetItemRecord 按记录 ID 获取计费项记录
func (uc *AccountUseCase) GetItemRecord(ctx context.Context, recordID string) (*ItemRecord, error) {
	return uc.items.GetItemRecord(ctx, recordID)
}

// UpdateItemRecord 修改计费项记录（已关闭的纪元不可修改）
func (uc *AccountUseCase) UpdateItemRecord(ctx context.Context, recordID string, patch *ItemRecordPatch) (*ItemRecord, error) {
	var record *ItemRecord
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = uc.items.GetItemRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if !record.Active() {
			return ErrItemRecordNotFound
		}
		if patch.Used != nil {
			// 调整量计入基数，后续对账在其上累加
			record.Baseline += *patch.Used - record.Used
			record.Used = *patch.Used
		}
		if patch.Until != nil {
			record.Until = *patch.Until
		}
		record.UpdatedAt = uc.now()
		return uc.items.UpdateItemRecord(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetItemRecordHistory 项目某计费项的记录（当前纪元在前，其后为已关闭纪元）
func (uc *AccountUseCase) GetItemRecordHistory(ctx context.Context, projectID, itemName string) ([]*ItemRecord, error) {
	if !uc.catalog.Supported(itemName) {
		return nil, ErrUnsupportedItem
	}
	active, err := uc.items.ListItemRecords(ctx, projectID, itemName, false)
	if err != nil {
		return nil, err
	}
	retired, err := uc.items.ListItemRecords(ctx, projectID, itemName, true)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 && len(retired) == 0 {
		return nil, ErrItemRecordNotFound
	}
	return append(active, retired...), nil
}

// ListItems 已注册的计费项
func (uc *AccountUseCase) ListItems(ctx context.Context) ([]*BillableItem, error) {
	return uc.items.ListItems(ctx)
}

// RecordExhaustionEvent 保存耗尽事件（MQ 消费）
func (uc *AccountUseCase) RecordExhaustionEvent(ctx context.Context, event *ExhaustionEvent) error {
	return uc.events.CreateExhaustionEvent(ctx, event)
}

// ListExhaustionEvents 项目耗尽事件
func (uc *AccountUseCase) ListExhaustionEvents(ctx context.Context, projectID string, limit int) ([]*ExhaustionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return uc.events.ListExhaustionEvents(ctx, projectID, limit)
}
