package data

import (
	"context"
	"encoding/json"
	"fmt"

	"project-billing/internal/biz"
	"project-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// eventRepo 耗尽事件数据访问
type eventRepo struct {
	data *Data
	log  *log.Helper
}

// NewEventRepo 创建耗尽事件 repo
func NewEventRepo(data *Data, logger log.Logger) biz.EventRepo {
	return &eventRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateExhaustionEvent 保存耗尽事件，重复投递的同一事件只保存一次
func (r *eventRepo) CreateExhaustionEvent(ctx context.Context, event *biz.ExhaustionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	instances, err := json.Marshal(nonNil(event.Instances))
	if err != nil {
		return err
	}
	deleted, err := json.Marshal(nonNil(event.InstancesDeleted))
	if err != nil {
		return err
	}
	m := model.ExhaustionEvent{
		ID:               event.ID,
		ProjectID:        event.ProjectID,
		Reason:           event.Reason,
		Amount:           event.Amount,
		Used:             event.Used,
		Until:            event.Until,
		UsersZeroed:      event.UsersZeroed,
		ProjectZeroed:    event.ProjectZeroed,
		Instances:        string(instances),
		InstancesDeleted: string(deleted),
		OccurredAt:       event.OccurredAt,
	}
	if err := r.data.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create exhaustion event: project=%s: %w", event.ProjectID, err)
	}
	return nil
}

// ListExhaustionEvents 项目最近的耗尽事件（按发生时间倒序）
func (r *eventRepo) ListExhaustionEvents(ctx context.Context, projectID string, limit int) ([]*biz.ExhaustionEvent, error) {
	var ms []model.ExhaustionEvent
	err := r.data.DB(ctx).Where("project_id = ?", projectID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list exhaustion events: project=%s: %w", projectID, err)
	}

	events := make([]*biz.ExhaustionEvent, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		event := &biz.ExhaustionEvent{
			ID:            m.ID,
			ProjectID:     m.ProjectID,
			Reason:        m.Reason,
			Amount:        m.Amount,
			Used:          m.Used,
			Until:         m.Until,
			UsersZeroed:   m.UsersZeroed,
			ProjectZeroed: m.ProjectZeroed,
			OccurredAt:    m.OccurredAt,
		}
		if err := json.Unmarshal([]byte(m.Instances), &event.Instances); err != nil {
			r.log.Warnf("invalid instances in exhaustion event %s: %v", m.ID, err)
		}
		if err := json.Unmarshal([]byte(m.InstancesDeleted), &event.InstancesDeleted); err != nil {
			r.log.Warnf("invalid deleted instances in exhaustion event %s: %v", m.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
