package model

import (
	"time"
)

// Item 计费项表
type Item struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)"`
	Name      string     `gorm:"type:varchar(255);not null;uniqueIndex:uk_item_name"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool `gorm:"not null;default:false"`
}

// TableName 指定表名
func (Item) TableName() string {
	return "items"
}

// ProjectItemRecord 项目计费项记录表（一行一个价格纪元，deleted=true 表示已关闭）
type ProjectItemRecord struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)"`
	ItemID    string     `gorm:"type:varchar(36);not null"`
	ProjectID string     `gorm:"type:varchar(255);not null;index:idx_project_item,priority:1"`
	Used      int64      `gorm:"default:0"`
	Baseline  int64      `gorm:"default:0"` // 纪元开始前已结算的用量
	Price     int64      `gorm:"default:0"`
	Until     time.Time  `gorm:"not null"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool `gorm:"not null;default:false;index:idx_project_item,priority:2"`

	Item Item `gorm:"foreignKey:ItemID"`
}

// TableName 指定表名
func (ProjectItemRecord) TableName() string {
	return "project_item_record"
}

// ProjectAccountRecord 项目账户表
type ProjectAccountRecord struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	ProjectID   string     `gorm:"type:varchar(255);not null;index:idx_project_deleted,priority:1"`
	Amount      int64      `gorm:"default:0"`
	Used        int64      `gorm:"default:0"`
	Description string     `gorm:"type:varchar(255)"`
	Until       time.Time  `gorm:"not null"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Deleted     bool `gorm:"not null;default:false;index:idx_project_deleted,priority:2"`
}

// TableName 指定表名
func (ProjectAccountRecord) TableName() string {
	return "project_account_record"
}

// ExhaustionEvent 项目耗尽事件表
type ExhaustionEvent struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	ProjectID        string    `gorm:"type:varchar(255);not null;index:idx_project_occurred,priority:1"`
	Reason           string    `gorm:"type:varchar(16);not null"`
	Amount           int64     `gorm:"default:0"`
	Used             int64     `gorm:"default:0"`
	Until            time.Time `gorm:"not null"`
	UsersZeroed      int       `gorm:"default:0"`
	ProjectZeroed    bool      `gorm:"not null;default:false"`
	Instances        string    `gorm:"type:text"` // JSON 数组
	InstancesDeleted string    `gorm:"type:text"` // JSON 数组
	OccurredAt       time.Time `gorm:"not null;index:idx_project_occurred,priority:2"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ExhaustionEvent) TableName() string {
	return "exhaustion_event"
}

// Models 账本全部表（AutoMigrate 使用）
func Models() []interface{} {
	return []interface{}{
		&Item{},
		&ProjectItemRecord{},
		&ProjectAccountRecord{},
		&ExhaustionEvent{},
	}
}
