package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"project-billing/internal/constants"
	"project-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// AdminCredential 配额服务管理员凭据（启动时获取一次，经 context 传递给每次调用）
type AdminCredential struct {
	Username   string
	TenantID   string
	Token      string
	ExpiresAt  time.Time
	ComputeURL string
}

type credentialKey struct{}

// WithCredential 将管理员凭据放入 context
func WithCredential(ctx context.Context, cred *AdminCredential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFromContext 从 context 取管理员凭据
func CredentialFromContext(ctx context.Context) (*AdminCredential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(*AdminCredential)
	return cred, ok && cred != nil
}

// Quota 计算配额
type Quota struct {
	Cores int64
	RAM   int64
}

// IsZero 配额是否已清零
func (q *Quota) IsZero() bool {
	return q != nil && q.Cores == 0 && q.RAM == 0
}

// Instance 计算实例
type Instance struct {
	ID     string
	Name   string
	Status string
	UserID string
}

// QuotaActuator 计算配额执行器（外部服务）
type QuotaActuator interface {
	ListProjectUsers(ctx context.Context, projectID string) ([]string, error)
	GetUserQuota(ctx context.Context, projectID, userID string) (*Quota, error)
	SetUserQuota(ctx context.Context, projectID, userID string, quota Quota) error
	GetProjectQuota(ctx context.Context, projectID string) (*Quota, error)
	SetProjectQuota(ctx context.Context, projectID string, quota Quota) error
	ListInstances(ctx context.Context, projectID string) ([]*Instance, error)
	DeleteInstance(ctx context.Context, instanceID string) error
}

// Locker 分布式锁
type Locker interface {
	// Lock 获取锁，未获取到返回 error；返回的 unlock 可重复调用
	Lock(ctx context.Context, key string, expiry time.Duration) (unlock func(), err error)
}

// EnforcementReport 单次限额执行结果
type EnforcementReport struct {
	ProjectID        string   `json:"project_id"`
	UsersZeroed      []string `json:"users_zeroed,omitempty"`
	ProjectZeroed    bool     `json:"project_zeroed"`
	Instances        []string `json:"instances,omitempty"`
	InstancesDeleted []string `json:"instances_deleted,omitempty"`
	Calls            int      `json:"calls"`
}

// ExhaustionEnforcer 项目耗尽后回收计算配额
type ExhaustionEnforcer struct {
	actuator  QuotaActuator
	cred      *AdminCredential
	locker    Locker
	publisher EventPublisher
	conf      *AgentConfig
	log       *log.Helper
	metrics   *metrics.BillingMetrics
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewExhaustionEnforcer 创建限额执行器
func NewExhaustionEnforcer(actuator QuotaActuator, cred *AdminCredential, locker Locker, publisher EventPublisher, conf *AgentConfig, logger log.Logger) *ExhaustionEnforcer {
	return &ExhaustionEnforcer{
		actuator:  actuator,
		cred:      cred,
		locker:    locker,
		publisher: publisher,
		conf:      conf,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
		inflight:  make(map[string]*sync.Mutex),
	}
}

func (e *ExhaustionEnforcer) projectMutex(projectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.inflight[projectID]
	if !ok {
		m = &sync.Mutex{}
		e.inflight[projectID] = m
	}
	return m
}

// Enforce 回收项目计算配额
// 每一步都是幂等的：配额已为 0 时不再调用执行器。执行器错误不在本次对账内重试。
func (e *ExhaustionEnforcer) Enforce(ctx context.Context, record *ProjectRecord) (*EnforcementReport, error) {
	projectID := record.ProjectID

	m := e.projectMutex(projectID)
	m.Lock()
	defer m.Unlock()

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, constants.RedisKeyEnforceLock+projectID, e.conf.EnforceLockExpiry)
		if err != nil {
			return nil, ExternalUnavailable(err, "acquire enforcement lock for project %s", projectID)
		}
		defer unlock()
	}

	if e.cred != nil {
		ctx = WithCredential(ctx, e.cred)
	}

	e.log.Infof("handling billing exhausted event: project=%s, amount=%d, used=%d, until=%s",
		projectID, record.Amount, record.Used, record.Until.Format(time.RFC3339))

	report := &EnforcementReport{ProjectID: projectID}
	var errs []error
	succeeded := 0

	// 1. 用户配额清零
	users, err := e.listUsers(ctx, report, projectID)
	if err != nil {
		errs = append(errs, err)
	} else {
		succeeded++
	}
	for _, userID := range users {
		zeroed, err := e.zeroUserQuota(ctx, report, projectID, userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		succeeded++
		if zeroed {
			report.UsersZeroed = append(report.UsersZeroed, userID)
		}
	}

	// 2. 项目配额清零
	zeroed, err := e.zeroProjectQuota(ctx, report, projectID)
	if err != nil {
		errs = append(errs, err)
	} else {
		succeeded++
		report.ProjectZeroed = zeroed
	}

	// 3. 列出项目实例，删除受策略控制
	if err := e.handleInstances(ctx, report, projectID); err != nil {
		errs = append(errs, err)
	} else {
		succeeded++
	}

	if e.metrics != nil {
		e.metrics.ExhaustedTotal.WithLabelValues(record.ExhaustedReason(e.now())).Inc()
	}
	e.publish(ctx, record, report)

	if len(errs) == 0 {
		return report, nil
	}
	cause := stderrors.Join(errs...)
	if succeeded == 0 {
		return report, ExternalUnavailable(cause, "quota actuator unavailable for project %s", projectID)
	}
	return report, ActuatorPartialFailure(cause, "%d enforcement steps failed for project %s", len(errs), projectID)
}

func (e *ExhaustionEnforcer) call(ctx context.Context, report *EnforcementReport, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.conf.ActuatorTimeout)
	defer cancel()
	report.Calls++
	err := fn(callCtx)
	e.observe(op, err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (e *ExhaustionEnforcer) listUsers(ctx context.Context, report *EnforcementReport, projectID string) ([]string, error) {
	var users []string
	err := e.call(ctx, report, "list_users", func(ctx context.Context) error {
		var err error
		users, err = e.actuator.ListProjectUsers(ctx, projectID)
		return err
	})
	return users, err
}

func (e *ExhaustionEnforcer) zeroUserQuota(ctx context.Context, report *EnforcementReport, projectID, userID string) (bool, error) {
	var quota *Quota
	if err := e.call(ctx, report, "get_user_quota", func(ctx context.Context) error {
		var err error
		quota, err = e.actuator.GetUserQuota(ctx, projectID, userID)
		return err
	}); err != nil {
		return false, err
	}
	if quota.IsZero() {
		e.observeSkipped("set_user_quota")
		return false, nil
	}
	e.log.Infof("setting quotas for user to 0: project=%s, user=%s", projectID, userID)
	if err := e.call(ctx, report, "set_user_quota", func(ctx context.Context) error {
		return e.actuator.SetUserQuota(ctx, projectID, userID, Quota{})
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (e *ExhaustionEnforcer) zeroProjectQuota(ctx context.Context, report *EnforcementReport, projectID string) (bool, error) {
	var quota *Quota
	if err := e.call(ctx, report, "get_project_quota", func(ctx context.Context) error {
		var err error
		quota, err = e.actuator.GetProjectQuota(ctx, projectID)
		return err
	}); err != nil {
		return false, err
	}
	if quota.IsZero() {
		e.observeSkipped("set_project_quota")
		return false, nil
	}
	e.log.Infof("setting quotas for project to 0: project=%s", projectID)
	if err := e.call(ctx, report, "set_project_quota", func(ctx context.Context) error {
		return e.actuator.SetProjectQuota(ctx, projectID, Quota{})
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (e *ExhaustionEnforcer) handleInstances(ctx context.Context, report *EnforcementReport, projectID string) error {
	var instances []*Instance
	if err := e.call(ctx, report, "list_instances", func(ctx context.Context) error {
		var err error
		instances, err = e.actuator.ListInstances(ctx, projectID)
		return err
	}); err != nil {
		return err
	}

	var errs []error
	for _, inst := range instances {
		report.Instances = append(report.Instances, inst.ID)
		if !e.conf.DeleteInstances {
			e.log.Infof("instance marked for deletion (policy disabled): project=%s, instance=%s", projectID, inst.ID)
			continue
		}
		e.log.Infof("deleting instance: project=%s, instance=%s", projectID, inst.ID)
		id := inst.ID
		if err := e.call(ctx, report, "delete_instance", func(ctx context.Context) error {
			return e.actuator.DeleteInstance(ctx, id)
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		report.InstancesDeleted = append(report.InstancesDeleted, id)
	}
	return stderrors.Join(errs...)
}

func (e *ExhaustionEnforcer) publish(ctx context.Context, record *ProjectRecord, report *EnforcementReport) {
	if e.publisher == nil {
		return
	}
	now := e.now()
	event := &ExhaustionEvent{
		ProjectID:        record.ProjectID,
		Reason:           record.ExhaustedReason(now),
		Amount:           record.Amount,
		Used:             record.Used,
		Until:            record.Until,
		UsersZeroed:      len(report.UsersZeroed),
		ProjectZeroed:    report.ProjectZeroed,
		Instances:        report.Instances,
		InstancesDeleted: report.InstancesDeleted,
		OccurredAt:       now,
	}
	if err := e.publisher.PublishExhausted(ctx, event); err != nil {
		e.log.Warnf("publish exhausted event failed: project=%s, error=%v", record.ProjectID, err)
	}
}

func (e *ExhaustionEnforcer) observe(op string, err error) {
	if e.metrics == nil {
		return
	}
	result := constants.ActuatorResultSuccess
	if err != nil {
		result = constants.ActuatorResultFailed
	}
	e.metrics.ActuatorCallTotal.WithLabelValues(op, result).Inc()
}

func (e *ExhaustionEnforcer) observeSkipped(op string) {
	if e.metrics != nil {
		e.metrics.ActuatorCallTotal.WithLabelValues(op, constants.ActuatorResultSkipped).Inc()
	}
}
