package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// itemRecordRepo 计费项与项目计费项记录数据访问
type itemRecordRepo struct {
	data *Data
	log  *log.Helper
}

// NewItemRecordRepo 创建计费项记录 repo（返回 biz.ItemRecordRepo 接口）
func NewItemRecordRepo(data *Data, logger log.Logger) biz.ItemRecordRepo {
	return &itemRecordRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func toBizItem(m *model.Item) *biz.BillableItem {
	return &biz.BillableItem{
		ID:        m.ID,
		Name:      m.Name,
		Deleted:   m.Deleted,
		CreatedAt: m.CreatedAt,
	}
}

func toBizItemRecord(m *model.ProjectItemRecord, itemName string) *biz.ItemRecord {
	if itemName == "" {
		itemName = m.Item.Name
	}
	return &biz.ItemRecord{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		ItemID:    m.ItemID,
		ItemName:  itemName,
		Used:      m.Used,
		Baseline:  m.Baseline,
		Price:     m.Price,
		Until:     m.Until,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		RetiredAt: m.DeletedAt,
	}
}

// GetItemByName 按名称获取计费项
func (r *itemRecordRepo) GetItemByName(ctx context.Context, name string) (*biz.BillableItem, error) {
	var m model.Item
	if err := r.data.DB(ctx).Where("name = ? AND deleted = ?", name, false).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to query item %s: %w", name, err)
	}
	return toBizItem(&m), nil
}

// CreateItem 创建计费项
func (r *itemRecordRepo) CreateItem(ctx context.Context, name string) (*biz.BillableItem, error) {
	now := time.Now().UTC()
	m := model.Item{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.data.DB(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to create item %s: %w", name, err)
	}
	r.log.Infof("item created: name=%s, id=%s", name, m.ID)
	return toBizItem(&m), nil
}

// ListItems 列出全部计费项
func (r *itemRecordRepo) ListItems(ctx context.Context) ([]*biz.BillableItem, error) {
	var ms []model.Item
	if err := r.data.DB(ctx).Where("deleted = ?", false).Order("name").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items := make([]*biz.BillableItem, 0, len(ms))
	for i := range ms {
		items = append(items, toBizItem(&ms[i]))
	}
	return items, nil
}

// GetActiveItemRecord 获取项目计费项当前纪元记录（事务内加行锁）
func (r *itemRecordRepo) GetActiveItemRecord(ctx context.Context, projectID, itemName string) (*biz.ItemRecord, error) {
	item, err := r.GetItemByName(ctx, itemName)
	if err != nil {
		if biz.IsNotFound(err) {
			return nil, biz.ErrItemRecordNotFound
		}
		return nil, err
	}

	db := r.data.DB(ctx)
	if inTx(ctx) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.ProjectItemRecord
	err = db.Where("project_id = ? AND item_id = ? AND deleted = ?", projectID, item.ID, false).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrItemRecordNotFound
		}
		return nil, fmt.Errorf("failed to query item record: project=%s, item=%s: %w", projectID, itemName, err)
	}
	return toBizItemRecord(&m, item.Name), nil
}

// GetItemRecord 按 ID 获取计费项记录（含已关闭纪元），事务内加行锁
func (r *itemRecordRepo) GetItemRecord(ctx context.Context, recordID string) (*biz.ItemRecord, error) {
	db := r.data.DB(ctx)
	if inTx(ctx) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.ProjectItemRecord
	if err := db.Preload("Item").Where("id = ?", recordID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrItemRecordNotFound
		}
		return nil, fmt.Errorf("failed to query item record %s: %w", recordID, err)
	}
	return toBizItemRecord(&m, ""), nil
}

// ListItemRecords 列出项目计费项记录，itemName 为空时列出所有计费项
func (r *itemRecordRepo) ListItemRecords(ctx context.Context, projectID, itemName string, retired bool) ([]*biz.ItemRecord, error) {
	db := r.data.DB(ctx).Preload("Item").Where("project_id = ? AND deleted = ?", projectID, retired)
	if itemName != "" {
		item, err := r.GetItemByName(ctx, itemName)
		if err != nil {
			if biz.IsNotFound(err) {
				return []*biz.ItemRecord{}, nil
			}
			return nil, err
		}
		db = db.Where("item_id = ?", item.ID)
	}

	var ms []model.ProjectItemRecord
	if err := db.Order("created_at DESC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list item records: project=%s: %w", projectID, err)
	}
	records := make([]*biz.ItemRecord, 0, len(ms))
	for i := range ms {
		records = append(records, toBizItemRecord(&ms[i], ""))
	}
	return records, nil
}

// CreateItemRecord 创建计费项记录
func (r *itemRecordRepo) CreateItemRecord(ctx context.Context, record *biz.ItemRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	m := model.ProjectItemRecord{
		ID:        record.ID,
		ItemID:    record.ItemID,
		ProjectID: record.ProjectID,
		Used:      record.Used,
		Baseline:  record.Baseline,
		Price:     record.Price,
		Until:     record.Until,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if err := r.data.DB(ctx).Omit(clause.Associations).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create item record: project=%s, item=%s: %w", record.ProjectID, record.ItemName, err)
	}
	return nil
}

// UpdateItemRecord 更新计费项记录的用量、基数与有效期
func (r *itemRecordRepo) UpdateItemRecord(ctx context.Context, record *biz.ItemRecord) error {
	result := r.data.DB(ctx).Model(&model.ProjectItemRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"used":       record.Used,
			"baseline":   record.Baseline,
			"until":      record.Until,
			"updated_at": record.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update item record %s: %w", record.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrItemRecordNotFound
	}
	return nil
}

// RetireItemRecord 关闭价格纪元（deleted=true, deleted_at=at）
func (r *itemRecordRepo) RetireItemRecord(ctx context.Context, recordID string, at time.Time) error {
	result := r.data.DB(ctx).Model(&model.ProjectItemRecord{}).
		Where("id = ? AND deleted = ?", recordID, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to retire item record %s: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrItemRecordNotFound
	}
	return nil
}

// SumUsage 项目当前纪元或已关闭纪元的用量合计
func (r *itemRecordRepo) SumUsage(ctx context.Context, projectID string, retired bool) (int64, error) {
	var total int64
	err := r.data.DB(ctx).Model(&model.ProjectItemRecord{}).
		Select("COALESCE(SUM(used), 0)").
		Where("project_id = ? AND deleted = ?", projectID, retired).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum item usage: project=%s: %w", projectID, err)
	}
	return total, nil
}
