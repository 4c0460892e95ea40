package biz

import (
	"context"
	"time"

	"project-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// ProjectRecord 项目账户记录
type ProjectRecord struct {
	ID          string
	ProjectID   string
	Amount      int64
	Used        int64
	Description string
	Until       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deleted     bool
	DeletedAt   *time.Time
}

// Exhausted 额度用尽或账期过期
func (r *ProjectRecord) Exhausted(now time.Time) bool {
	return r.Amount < r.Used || now.After(r.Until)
}

// ExhaustedReason 耗尽原因，未耗尽返回空串
func (r *ProjectRecord) ExhaustedReason(now time.Time) string {
	switch {
	case r.Amount < r.Used:
		return constants.ExhaustedReasonBalance
	case now.After(r.Until):
		return constants.ExhaustedReasonExpired
	default:
		return ""
	}
}

// ProjectRecordRepo 项目账户数据层接口
type ProjectRecordRepo interface {
	// GetProjectRecord 获取项目有效账户（事务内加行锁），不存在返回 ErrProjectRecordNotFound
	GetProjectRecord(ctx context.Context, projectID string) (*ProjectRecord, error)
	GetProjectRecordByID(ctx context.Context, recordID string) (*ProjectRecord, error)
	ListProjectRecords(ctx context.Context, deleted bool) ([]*ProjectRecord, error)
	CreateProjectRecord(ctx context.Context, record *ProjectRecord) error
	UpdateProjectRecord(ctx context.Context, record *ProjectRecord) error
	DeleteProjectRecord(ctx context.Context, recordID string, at time.Time) error
}

// ProjectLedger 项目账户账本
type ProjectLedger struct {
	repo ProjectRecordRepo
	conf *BillingConfig
	log  *log.Helper
	now  func() time.Time
}

// NewProjectLedger 创建项目账户账本
func NewProjectLedger(repo ProjectRecordRepo, conf *BillingConfig, logger log.Logger) *ProjectLedger {
	return &ProjectLedger{
		repo: repo,
		conf: conf,
		log:  log.NewHelper(logger),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// NewDefaultRecord 新项目的默认账户
func (l *ProjectLedger) NewDefaultRecord(projectID string) *ProjectRecord {
	now := l.now()
	return &ProjectRecord{
		ProjectID:   projectID,
		Amount:      l.conf.DefaultAmount,
		Used:        0,
		Description: l.conf.DefaultDescription,
		Until:       now.Add(l.conf.DefaultPeriod),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RecordTotal 写入项目累计用量并判断是否耗尽
// 首次对账只创建默认账户（used=0），本次用量在下一次对账时写入。
func (l *ProjectLedger) RecordTotal(ctx context.Context, projectID string, totalUsed int64) (*ProjectRecord, bool, error) {
	record, err := l.repo.GetProjectRecord(ctx, projectID)
	switch {
	case err == nil:
		record.Used = totalUsed
		record.UpdatedAt = l.now()
		if err := l.repo.UpdateProjectRecord(ctx, record); err != nil {
			return nil, false, err
		}
		l.log.Infof("project record updated: project=%s, used=%d", projectID, totalUsed)
	case IsNotFound(err):
		record = l.NewDefaultRecord(projectID)
		if err := l.repo.CreateProjectRecord(ctx, record); err != nil {
			return nil, false, err
		}
		l.log.Infof("project record created: project=%s, amount=%d", projectID, record.Amount)
	default:
		return nil, false, err
	}

	record, err = l.repo.GetProjectRecord(ctx, projectID)
	if err != nil {
		return nil, false, err
	}
	return record, record.Exhausted(l.now()), nil
}
