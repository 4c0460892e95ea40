package service

import (
	"context"
	"time"

	"project-billing/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// ProjectRecord 项目账户
type ProjectRecord struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Amount      int64      `json:"amount"`
	Used        int64      `json:"used"`
	Description string     `json:"description"`
	Until       time.Time  `json:"until"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ItemRecord 项目计费项记录
type ItemRecord struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	ItemID    string     `json:"item_id"`
	ItemName  string     `json:"item_name"`
	Used      int64      `json:"used"`
	Price     int64      `json:"price"`
	Until     time.Time  `json:"until"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Item 计费项
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRecordsRequest 空请求
type ListRecordsRequest struct{}

// ListRecordsReply 项目账户列表
type ListRecordsReply struct {
	Records []*ProjectRecord `json:"records"`
}

// RecordRequest 按记录 ID 操作
type RecordRequest struct {
	ID string `json:"id"`
}

// UpdateRecordRequest 修改项目账户（字段为空表示不修改）
type UpdateRecordRequest struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Amount      *int64     `json:"amount"`
	Used        *int64     `json:"used"`
	Description *string    `json:"description"`
	Until       *time.Time `json:"until"`
}

// DeleteRecordReply 删除结果
type DeleteRecordReply struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ProjectRequest 按项目操作
type ProjectRequest struct {
	ProjectID string `json:"project_id"`
}

// ProjectItemsReply 项目当前纪元计费项记录（按计费项名称）
type ProjectItemsReply struct {
	ProjectID string                 `json:"project_id"`
	Items     map[string]*ItemRecord `json:"items"`
}

// UpdateItemRecordRequest 修改计费项记录
type UpdateItemRecordRequest struct {
	ID    string     `json:"id"`
	Used  *int64     `json:"used"`
	Until *time.Time `json:"until"`
}

// ItemHistoryRequest 计费项记录历史
type ItemHistoryRequest struct {
	ProjectID string `json:"project_id"`
	Item      string `json:"item"`
}

// ItemHistoryReply 计费项记录历史（当前纪元在前）
type ItemHistoryReply struct {
	Records []*ItemRecord `json:"records"`
}

// ListItemsReply 计费项列表
type ListItemsReply struct {
	Items []*Item `json:"items"`
}

// ListEventsRequest 耗尽事件查询
type ListEventsRequest struct {
	ProjectID string `json:"project_id"`
	Limit     int    `json:"limit"`
}

// ListEventsReply 耗尽事件列表
type ListEventsReply struct {
	Events []*biz.ExhaustionEvent `json:"events"`
}

// AccountService 账本管理接口
type AccountService struct {
	uc  *biz.AccountUseCase
	log *log.Helper
}

// NewAccountService 创建 AccountService
func NewAccountService(uc *biz.AccountUseCase, logger log.Logger) *AccountService {
	return &AccountService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

func toProjectRecord(r *biz.ProjectRecord) *ProjectRecord {
	return &ProjectRecord{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Amount:      r.Amount,
		Used:        r.Used,
		Description: r.Description,
		Until:       r.Until,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Deleted:     r.Deleted,
		DeletedAt:   r.DeletedAt,
	}
}

func toItemRecord(r *biz.ItemRecord) *ItemRecord {
	return &ItemRecord{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		ItemID:    r.ItemID,
		ItemName:  r.ItemName,
		Used:      r.Used,
		Price:     r.Price,
		Until:     r.Until,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Deleted:   !r.Active(),
		DeletedAt: r.RetiredAt,
	}
}

func (req *UpdateRecordRequest) patch() *biz.ProjectRecordPatch {
	return &biz.ProjectRecordPatch{
		Amount:      req.Amount,
		Used:        req.Used,
		Description: req.Description,
		Until:       req.Until,
	}
}

// ListRecords 所有有效项目账户
func (s *AccountService) ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsReply, error) {
	records, err := s.uc.ListProjectRecords(ctx)
	if err != nil {
		s.log.Errorf("ListRecords failed: %v", err)
		return nil, err
	}
	reply := &ListRecordsReply{Records: make([]*ProjectRecord, 0, len(records))}
	for _, r := range records {
		reply.Records = append(reply.Records, toProjectRecord(r))
	}
	return reply, nil
}

// GetRecord 按 ID 获取项目账户
func (s *AccountService) GetRecord(ctx context.Context, req *RecordRequest) (*ProjectRecord, error) {
	record, err := s.uc.GetProjectRecordByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toProjectRecord(record), nil
}

// UpdateRecord 按 ID 修改项目账户
func (s *AccountService) UpdateRecord(ctx context.Context, req *UpdateRecordRequest) (*ProjectRecord, error) {
	record, err := s.uc.UpdateProjectRecordByID(ctx, req.ID, req.patch())
	if err != nil {
		s.log.Errorf("UpdateRecord failed: id=%s, error=%v", req.ID, err)
		return nil, err
	}
	return toProjectRecord(record), nil
}

// DeleteRecord 按 ID 软删除项目账户
func (s *AccountService) DeleteRecord(ctx context.Context, req *RecordRequest) (*DeleteRecordReply, error) {
	if err := s.uc.DeleteProjectRecordByID(ctx, req.ID); err != nil {
		s.log.Errorf("DeleteRecord failed: id=%s, error=%v", req.ID, err)
		return nil, err
	}
	return &DeleteRecordReply{ID: req.ID, Deleted: true}, nil
}

// GetProjectRecord 获取项目有效账户
func (s *AccountService) GetProjectRecord(ctx context.Context, req *ProjectRequest) (*ProjectRecord, error) {
	record, err := s.uc.GetProjectRecord(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return toProjectRecord(record), nil
}

// PutProjectRecord 修改项目账户，不存在时创建
func (s *AccountService) PutProjectRecord(ctx context.Context, req *UpdateRecordRequest) (*ProjectRecord, error) {
	record, err := s.uc.PutProjectRecord(ctx, req.ProjectID, req.patch())
	if err != nil {
		s.log.Errorf("PutProjectRecord failed: project=%s, error=%v", req.ProjectID, err)
		return nil, err
	}
	return toProjectRecord(record), nil
}

// GetProjectItems 项目当前纪元计费项记录
func (s *AccountService) GetProjectItems(ctx context.Context, req *ProjectRequest) (*ProjectItemsReply, error) {
	records, err := s.uc.ListProjectItemRecords(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	reply := &ProjectItemsReply{ProjectID: req.ProjectID, Items: make(map[string]*ItemRecord, len(records))}
	for name, r := range records {
		reply.Items[name] = toItemRecord(r)
	}
	return reply, nil
}

// GetItemRecord 按 ID 获取计费项记录
func (s *AccountService) GetItemRecord(ctx context.Context, req *RecordRequest) (*ItemRecord, error) {
	record, err := s.uc.GetItemRecord(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toItemRecord(record), nil
}

// UpdateItemRecord 修改计费项记录的用量 / 有效期
func (s *AccountService) UpdateItemRecord(ctx context.Context, req *UpdateItemRecordRequest) (*ItemRecord, error) {
	record, err := s.uc.UpdateItemRecord(ctx, req.ID, &biz.ItemRecordPatch{Used: req.Used, Until: req.Until})
	if err != nil {
		s.log.Errorf("UpdateItemRecord failed: id=%s, error=%v", req.ID, err)
		return nil, err
	}
	return toItemRecord(record), nil
}

// GetItemHistory 项目某计费项的全部纪元
func (s *AccountService) GetItemHistory(ctx context.Context, req *ItemHistoryRequest) (*ItemHistoryReply, error) {
	records, err := s.uc.GetItemRecordHistory(ctx, req.ProjectID, req.Item)
	if err != nil {
		return nil, err
	}
	reply := &ItemHistoryReply{Records: make([]*ItemRecord, 0, len(records))}
	for _, r := range records {
		reply.Records = append(reply.Records, toItemRecord(r))
	}
	return reply, nil
}

// ListItems 已注册的计费项
func (s *AccountService) ListItems(ctx context.Context, req *ListRecordsRequest) (*ListItemsReply, error) {
	items, err := s.uc.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	reply := &ListItemsReply{Items: make([]*Item, 0, len(items))}
	for _, it := range items {
		reply.Items = append(reply.Items, &Item{ID: it.ID, Name: it.Name, CreatedAt: it.CreatedAt})
	}
	return reply, nil
}

// ListEvents 项目耗尽事件
func (s *AccountService) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsReply, error) {
	events, err := s.uc.ListExhaustionEvents(ctx, req.ProjectID, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ListEventsReply{Events: events}, nil
}
