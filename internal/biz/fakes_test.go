package biz

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

var testLogger = log.NewStdLogger(io.Discard)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memItemRepo 内存计费项账本
type memItemRepo struct {
	mu      sync.Mutex
	seq     int
	items   map[string]*BillableItem
	records []*ItemRecord
	getErr  error
}

func newMemItemRepo() *memItemRepo {
	return &memItemRepo{items: make(map[string]*BillableItem)}
}

func (r *memItemRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memItemRepo) GetItemByName(ctx context.Context, name string) (*BillableItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[name]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memItemRepo) CreateItem(ctx context.Context, name string) (*BillableItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := &BillableItem{ID: r.nextID("item"), Name: name, CreatedAt: time.Now()}
	r.items[name] = item
	cp := *item
	return &cp, nil
}

func (r *memItemRepo) ListItems(ctx context.Context) ([]*BillableItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*BillableItem
	for _, item := range r.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memItemRepo) GetActiveItemRecord(ctx context.Context, projectID, itemName string) (*ItemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, rec := range r.records {
		if rec.ProjectID == projectID && rec.ItemName == itemName && rec.Active() {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrItemRecordNotFound
}

func (r *memItemRepo) GetItemRecord(ctx context.Context, recordID string) (*ItemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrItemRecordNotFound
}

func (r *memItemRepo) ListItemRecords(ctx context.Context, projectID, itemName string, retired bool) ([]*ItemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ItemRecord
	for _, rec := range r.records {
		if rec.ProjectID != projectID || rec.Active() == retired {
			continue
		}
		if itemName != "" && rec.ItemName != itemName {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memItemRepo) CreateItemRecord(ctx context.Context, record *ItemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = r.nextID("record")
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *memItemRepo) UpdateItemRecord(ctx context.Context, record *ItemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.ID == record.ID {
			cp := *record
			r.records[i] = &cp
			return nil
		}
	}
	return ErrItemRecordNotFound
}

func (r *memItemRepo) RetireItemRecord(ctx context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID {
			t := at
			rec.RetiredAt = &t
			return nil
		}
	}
	return ErrItemRecordNotFound
}

func (r *memItemRepo) SumUsage(ctx context.Context, projectID string, retired bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, rec := range r.records {
		if rec.ProjectID == projectID && rec.Active() != retired {
			sum += rec.Used
		}
	}
	return sum, nil
}

// memProjectRepo 内存项目账户
type memProjectRepo struct {
	mu         sync.Mutex
	seq        int
	records    []*ProjectRecord
	updateErrs map[string]error
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{updateErrs: make(map[string]error)}
}

func (r *memProjectRepo) GetProjectRecord(ctx context.Context, projectID string) (*ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ProjectID == projectID && !rec.Deleted {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrProjectRecordNotFound
}

func (r *memProjectRepo) GetProjectRecordByID(ctx context.Context, recordID string) (*ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID && !rec.Deleted {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrProjectRecordNotFound
}

func (r *memProjectRepo) ListProjectRecords(ctx context.Context, deleted bool) ([]*ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ProjectRecord
	for _, rec := range r.records {
		if rec.Deleted == deleted {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memProjectRepo) CreateProjectRecord(ctx context.Context, record *ProjectRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	record.ID = fmt.Sprintf("account-%d", r.seq)
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *memProjectRepo) UpdateProjectRecord(ctx context.Context, record *ProjectRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErrs[record.ProjectID]; err != nil {
		return err
	}
	for i, rec := range r.records {
		if rec.ID == record.ID {
			cp := *record
			r.records[i] = &cp
			return nil
		}
	}
	return ErrProjectRecordNotFound
}

func (r *memProjectRepo) DeleteProjectRecord(ctx context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID {
			t := at
			rec.Deleted = true
			rec.DeletedAt = &t
			return nil
		}
	}
	return ErrProjectRecordNotFound
}

// memEventRepo 内存耗尽事件
type memEventRepo struct {
	mu        sync.Mutex
	events    []*ExhaustionEvent
	lastLimit int
}

func (r *memEventRepo) CreateExhaustionEvent(ctx context.Context, event *ExhaustionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memEventRepo) ListExhaustionEvents(ctx context.Context, projectID string, limit int) ([]*ExhaustionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []*ExhaustionEvent
	for _, e := range r.events {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// PublishExhausted 直接保存，等价于未启用 MQ
func (r *memEventRepo) PublishExhausted(ctx context.Context, event *ExhaustionEvent) error {
	return r.CreateExhaustionEvent(ctx, event)
}

// fakeActuator 记录调用的配额执行器
type fakeActuator struct {
	mu            sync.Mutex
	users         map[string][]string
	userQuotas    map[string]Quota
	projectQuotas map[string]Quota
	instances     map[string][]*Instance
	deleted       []string
	setCalls      int
	errs          map[string]error // key: 操作名 或 操作名:用户
	noCredential  bool
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{
		users:         make(map[string][]string),
		userQuotas:    make(map[string]Quota),
		projectQuotas: make(map[string]Quota),
		instances:     make(map[string][]*Instance),
		errs:          make(map[string]error),
	}
}

func (a *fakeActuator) check(ctx context.Context, key string) error {
	if _, ok := CredentialFromContext(ctx); !ok {
		a.noCredential = true
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.errs[key]
}

func (a *fakeActuator) ListProjectUsers(ctx context.Context, projectID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "list_users"); err != nil {
		return nil, err
	}
	return a.users[projectID], nil
}

func (a *fakeActuator) GetUserQuota(ctx context.Context, projectID, userID string) (*Quota, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "get_user_quota:"+userID); err != nil {
		return nil, err
	}
	q := a.userQuotas[projectID+"/"+userID]
	return &q, nil
}

func (a *fakeActuator) SetUserQuota(ctx context.Context, projectID, userID string, quota Quota) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "set_user_quota:"+userID); err != nil {
		return err
	}
	a.setCalls++
	a.userQuotas[projectID+"/"+userID] = quota
	return nil
}

func (a *fakeActuator) GetProjectQuota(ctx context.Context, projectID string) (*Quota, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "get_project_quota"); err != nil {
		return nil, err
	}
	q := a.projectQuotas[projectID]
	return &q, nil
}

func (a *fakeActuator) SetProjectQuota(ctx context.Context, projectID string, quota Quota) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "set_project_quota"); err != nil {
		return err
	}
	a.setCalls++
	a.projectQuotas[projectID] = quota
	return nil
}

func (a *fakeActuator) ListInstances(ctx context.Context, projectID string) ([]*Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "list_instances"); err != nil {
		return nil, err
	}
	return a.instances[projectID], nil
}

func (a *fakeActuator) DeleteInstance(ctx context.Context, instanceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check(ctx, "delete_instance"); err != nil {
		return err
	}
	a.deleted = append(a.deleted, instanceID)
	return nil
}

// fakeLocker 单进程锁，busy 时模拟锁被占用
type fakeLocker struct {
	busy     bool
	acquired []string
	expiries []time.Duration
}

func (l *fakeLocker) Lock(ctx context.Context, key string, expiry time.Duration) (func(), error) {
	if l.busy {
		return nil, fmt.Errorf("lock %s is held", key)
	}
	l.acquired = append(l.acquired, key)
	l.expiries = append(l.expiries, expiry)
	return func() {}, nil
}

// fakeFeed 遥测数据源
type fakeFeed struct {
	projects   []string
	samples    map[string][]*ResourceSample
	listErr    error
	sampleErrs map[string]error
	onSamples  func(projectID string)
}

func (f *fakeFeed) ListProjects(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.projects, nil
}

func (f *fakeFeed) ListResourceSamples(ctx context.Context, projectID string) ([]*ResourceSample, error) {
	if f.onSamples != nil {
		f.onSamples(projectID)
	}
	if err := f.sampleErrs[projectID]; err != nil {
		return nil, err
	}
	return f.samples[projectID], nil
}

// fakeTx 记录事务调用，fn 的 ctx 必须不可取消
type fakeTx struct {
	calls          int
	canceledInside bool
}

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if ctx.Err() != nil {
		t.canceledInside = true
	}
	return fn(ctx)
}
