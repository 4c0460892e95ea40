package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/constants"
	"project-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const projectRecordCacheTTL = 5 * time.Minute

// projectRecordRepo 项目账户数据访问（MySQL + Redis 缓存）
type projectRecordRepo struct {
	data *Data
	log  *log.Helper
}

// NewProjectRecordRepo 创建项目账户 repo（返回 biz.ProjectRecordRepo 接口）
func NewProjectRecordRepo(data *Data, logger log.Logger) biz.ProjectRecordRepo {
	return &projectRecordRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func toBizProjectRecord(m *model.ProjectAccountRecord) *biz.ProjectRecord {
	return &biz.ProjectRecord{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Amount:      m.Amount,
		Used:        m.Used,
		Description: m.Description,
		Until:       m.Until,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Deleted:     m.Deleted,
		DeletedAt:   m.DeletedAt,
	}
}

func cacheKey(projectID string) string {
	return fmt.Sprintf("%s%s", constants.RedisKeyProjectRecord, projectID)
}

// GetProjectRecord 获取项目有效账户
// 事务内直接读库并加行锁，事务外优先读缓存。
func (r *projectRecordRepo) GetProjectRecord(ctx context.Context, projectID string) (*biz.ProjectRecord, error) {
	locked := inTx(ctx)
	if !locked {
		if record, ok := r.getCache(ctx, projectID); ok {
			return record, nil
		}
	}

	db := r.data.DB(ctx)
	if locked {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.ProjectAccountRecord
	err := db.Where("project_id = ? AND deleted = ?", projectID, false).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrProjectRecordNotFound
		}
		r.log.Errorf("GetProjectRecord failed: project=%s, error=%v", projectID, err)
		return nil, fmt.Errorf("failed to query project record from database: %w", err)
	}

	record := toBizProjectRecord(&m)
	if !locked {
		r.setCache(ctx, record)
	}
	return record, nil
}

// GetProjectRecordByID 按记录 ID 获取项目账户（含已删除），事务内加行锁
func (r *projectRecordRepo) GetProjectRecordByID(ctx context.Context, recordID string) (*biz.ProjectRecord, error) {
	db := r.data.DB(ctx)
	if inTx(ctx) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.ProjectAccountRecord
	if err := db.Where("id = ?", recordID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrProjectRecordNotFound
		}
		return nil, fmt.Errorf("failed to query project record %s: %w", recordID, err)
	}
	return toBizProjectRecord(&m), nil
}

// ListProjectRecords 列出项目账户
func (r *projectRecordRepo) ListProjectRecords(ctx context.Context, deleted bool) ([]*biz.ProjectRecord, error) {
	var ms []model.ProjectAccountRecord
	if err := r.data.DB(ctx).Where("deleted = ?", deleted).Order("project_id").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list project records: %w", err)
	}
	records := make([]*biz.ProjectRecord, 0, len(ms))
	for i := range ms {
		records = append(records, toBizProjectRecord(&ms[i]))
	}
	return records, nil
}

// CreateProjectRecord 创建项目账户
func (r *projectRecordRepo) CreateProjectRecord(ctx context.Context, record *biz.ProjectRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	m := model.ProjectAccountRecord{
		ID:          record.ID,
		ProjectID:   record.ProjectID,
		Amount:      record.Amount,
		Used:        record.Used,
		Description: record.Description,
		Until:       record.Until,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if err := r.data.DB(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create project record: project=%s: %w", record.ProjectID, err)
	}
	r.invalidate(ctx, record.ProjectID)
	return nil
}

// UpdateProjectRecord 更新项目账户
func (r *projectRecordRepo) UpdateProjectRecord(ctx context.Context, record *biz.ProjectRecord) error {
	result := r.data.DB(ctx).Model(&model.ProjectAccountRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"amount":      record.Amount,
			"used":        record.Used,
			"description": record.Description,
			"until":       record.Until,
			"updated_at":  record.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update project record %s: %w", record.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrProjectRecordNotFound
	}
	r.invalidate(ctx, record.ProjectID)
	return nil
}

// DeleteProjectRecord 软删除项目账户
func (r *projectRecordRepo) DeleteProjectRecord(ctx context.Context, recordID string, at time.Time) error {
	var m model.ProjectAccountRecord
	if err := r.data.DB(ctx).Where("id = ?", recordID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return biz.ErrProjectRecordNotFound
		}
		return fmt.Errorf("failed to query project record %s: %w", recordID, err)
	}
	err := r.data.DB(ctx).Model(&model.ProjectAccountRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": at,
			"updated_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to delete project record %s: %w", recordID, err)
	}
	r.invalidate(ctx, m.ProjectID)
	return nil
}

func (r *projectRecordRepo) getCache(ctx context.Context, projectID string) (*biz.ProjectRecord, bool) {
	if r.data.rdb == nil {
		return nil, false
	}
	val, err := r.data.rdb.Get(ctx, cacheKey(projectID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warnf("failed to read project record cache: project=%s, error=%v", projectID, err)
		}
		return nil, false
	}
	var record biz.ProjectRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, false
	}
	return &record, true
}

func (r *projectRecordRepo) setCache(ctx context.Context, record *biz.ProjectRecord) {
	if r.data.rdb == nil {
		return
	}
	b, err := json.Marshal(record)
	if err != nil {
		return
	}
	// 缓存更新失败不影响主流程，只记录日志
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 1*time.Second)
	defer cancel()
	if err := r.data.rdb.Set(cacheCtx, cacheKey(record.ProjectID), b, projectRecordCacheTTL).Err(); err != nil {
		r.log.Warnf("failed to update project record cache: project=%s, error=%v", record.ProjectID, err)
	}
}

// invalidate 删除项目账户缓存，事务内推迟到提交之后
// 提交前删除会让事务外的读者把旧行重新写回缓存。
func (r *projectRecordRepo) invalidate(ctx context.Context, projectID string) {
	if r.data.rdb == nil {
		return
	}
	afterCommit(ctx, func() {
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 1*time.Second)
		defer cancel()
		if err := r.data.rdb.Del(cacheCtx, cacheKey(projectID)).Err(); err != nil {
			r.log.Warnf("failed to invalidate project record cache: project=%s, error=%v", projectID, err)
		}
	})
}
