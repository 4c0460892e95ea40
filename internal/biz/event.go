package biz

import (
	"context"
	"time"
)

// ExhaustionEvent 项目耗尽事件
type ExhaustionEvent struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Reason           string    `json:"reason"` // balance / expired
	Amount           int64     `json:"amount"`
	Used             int64     `json:"used"`
	Until            time.Time `json:"until"`
	UsersZeroed      int       `json:"users_zeroed"`
	ProjectZeroed    bool      `json:"project_zeroed"`
	Instances        []string  `json:"instances"`
	InstancesDeleted []string  `json:"instances_deleted"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// EventPublisher 耗尽事件发布（RocketMQ，未启用时直接落库）
type EventPublisher interface {
	PublishExhausted(ctx context.Context, event *ExhaustionEvent) error
}

// EventRepo 耗尽事件存储
type EventRepo interface {
	CreateExhaustionEvent(ctx context.Context, event *ExhaustionEvent) error
	ListExhaustionEvents(ctx context.Context, projectID string, limit int) ([]*ExhaustionEvent, error)
}
