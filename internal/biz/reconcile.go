package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"project-billing/internal/constants"
	"project-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// ResourceSample 遥测资源样本（只读）
type ResourceSample struct {
	ProjectID  string
	ResourceID string
	VCPUs      int64
	MemoryMB   int64
	CreatedAt  *time.Time // 资源创建时间
	Timestamp  time.Time  // 最近一次采样时间
}

// TelemetryFeed 遥测数据源
type TelemetryFeed interface {
	ListProjects(ctx context.Context) ([]string, error)
	ListResourceSamples(ctx context.Context, projectID string) ([]*ResourceSample, error)
}

// Transaction 项目级账本事务
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProjectOutcome 单个项目的对账结果
type ProjectOutcome struct {
	ProjectID        string             `json:"project_id"`
	Status           string             `json:"status"`
	Reason           string             `json:"reason,omitempty"`
	Message          string             `json:"message,omitempty"`
	Charges          map[string]float64 `json:"charges,omitempty"`
	TotalUsed        int64              `json:"total_used"`
	RecordedUsed     int64              `json:"recorded_used"`
	Exhausted        bool               `json:"exhausted"`
	Enforcement      *EnforcementReport `json:"enforcement,omitempty"`
	UnsupportedItems []string           `json:"unsupported_items,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
}

// Failed 是否失败
func (o *ProjectOutcome) Failed() bool {
	return o.Status == constants.OutcomeFailed
}

// ReconcileUseCase 对账：遥测样本 -> 计费项账本 -> 项目账户 -> 限额
type ReconcileUseCase struct {
	feed     TelemetryFeed
	tx       Transaction
	calc     *UsageCalculator
	items    *ItemLedger
	projects *ProjectLedger
	enforcer *ExhaustionEnforcer
	locker   Locker
	conf     *BillingConfig
	agent    *AgentConfig
	log      *log.Helper
	metrics  *metrics.BillingMetrics
}

// NewReconcileUseCase 创建对账 UseCase
func NewReconcileUseCase(
	feed TelemetryFeed,
	tx Transaction,
	calc *UsageCalculator,
	items *ItemLedger,
	projects *ProjectLedger,
	enforcer *ExhaustionEnforcer,
	locker Locker,
	conf *BillingConfig,
	agent *AgentConfig,
	logger log.Logger,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		feed:     feed,
		tx:       tx,
		calc:     calc,
		items:    items,
		projects: projects,
		enforcer: enforcer,
		locker:   locker,
		conf:     conf,
		agent:    agent,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// Run 获取对账锁后执行一次对账，锁被占用时返回 ErrPassInProgress
func (uc *ReconcileUseCase) Run(ctx context.Context) ([]*ProjectOutcome, error) {
	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, constants.RedisKeyPassLock, uc.agent.PassLockExpiry)
		if err != nil {
			return nil, ErrPassInProgress.WithCause(err)
		}
		defer unlock()
	}
	return uc.RunPass(ctx)
}

// RunPass 执行一次对账
// 单个项目失败只记录在结果中，不影响其他项目。取消只在项目之间生效，不会打断进行中的账本事务。
func (uc *ReconcileUseCase) RunPass(ctx context.Context) ([]*ProjectOutcome, error) {
	startTime := time.Now()
	defer func() {
		if uc.metrics != nil {
			uc.metrics.PassDuration.Observe(time.Since(startTime).Seconds())
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, uc.agent.FetchTimeout)
	projects, err := uc.feed.ListProjects(fetchCtx)
	cancel()
	if err != nil {
		return nil, classify(err, func(err error) error {
			return ExternalUnavailable(err, "list projects from telemetry")
		})
	}

	outcomes := make([]*ProjectOutcome, 0, len(projects))
	for i, projectID := range projects {
		if err := ctx.Err(); err != nil {
			uc.log.Warnf("reconciliation pass canceled: processed=%d, remaining=%d", i, len(projects)-i)
			return outcomes, errors.ClientClosed(ReasonPassCanceled, "reconciliation pass canceled").WithCause(err)
		}
		uc.log.Infof("check bill for project: %s", projectID)
		outcome := uc.reconcileProject(ctx, projectID)
		if outcome.Failed() {
			uc.log.Errorf("reconcile project failed: project=%s, reason=%s, error=%s", projectID, outcome.Reason, outcome.Message)
		}
		if uc.metrics != nil {
			uc.metrics.ProjectOutcomeTotal.WithLabelValues(outcome.Status, outcome.Reason).Inc()
		}
		outcomes = append(outcomes, outcome)
	}

	if uc.metrics != nil {
		uc.metrics.PassProjects.Set(float64(len(projects)))
	}
	uc.log.Infof("reconciliation pass finished: projects=%d, duration=%s", len(projects), time.Since(startTime))
	return outcomes, nil
}

// reconcileProject 对账单个项目
func (uc *ReconcileUseCase) reconcileProject(ctx context.Context, projectID string) (outcome *ProjectOutcome) {
	outcome = &ProjectOutcome{
		ProjectID: projectID,
		Status:    constants.OutcomeSuccess,
		Charges:   make(map[string]float64),
	}
	defer func() {
		if r := recover(); r != nil {
			uc.fail(outcome, errors.InternalServer(errors.UnknownReason, fmt.Sprintf("panic: %v", r)))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, uc.agent.FetchTimeout)
	samples, err := uc.feed.ListResourceSamples(fetchCtx, projectID)
	cancel()
	if err != nil {
		uc.fail(outcome, classify(err, func(err error) error {
			return ExternalUnavailable(err, "list resource samples for project %s", projectID)
		}))
		return outcome
	}
	samples = uc.validSamples(outcome, samples)

	var record *ProjectRecord
	err = uc.tx.InTx(context.WithoutCancel(ctx), func(ctx context.Context) error {
		for _, item := range uc.conf.SupportedItems {
			_, charge, err := uc.items.RecordUsage(ctx, projectID, item, uc.usageMeter(outcome, projectID, item, samples))
			if err != nil {
				return err
			}
			outcome.Charges[item] = charge
		}

		total, err := uc.items.LifetimeUsage(ctx, projectID)
		if err != nil {
			return err
		}
		outcome.TotalUsed = total

		record, outcome.Exhausted, err = uc.projects.RecordTotal(ctx, projectID, total)
		return err
	})
	if err != nil {
		uc.fail(outcome, classify(err, func(err error) error {
			return LedgerWriteFailed(err, "update ledger for project %s", projectID)
		}))
		return outcome
	}
	outcome.RecordedUsed = record.Used

	if !outcome.Exhausted {
		return outcome
	}
	// 已开始的限额操作不随对账取消中断，每次调用仍受调用超时约束
	report, err := uc.enforcer.Enforce(context.WithoutCancel(ctx), record)
	outcome.Enforcement = report
	if err != nil {
		uc.fail(outcome, err)
	}
	return outcome
}

// validSamples 过滤不一致样本：有用量但缺少创建时间，或采样时间早于创建时间
func (uc *ReconcileUseCase) validSamples(outcome *ProjectOutcome, samples []*ResourceSample) []*ResourceSample {
	valid := make([]*ResourceSample, 0, len(samples))
	for _, s := range samples {
		if s.CreatedAt == nil {
			if s.VCPUs != 0 || s.MemoryMB != 0 {
				uc.warn(outcome, DataInconsistency("resource %s has usage but no created_at", s.ResourceID))
			}
			continue
		}
		if s.Timestamp.Before(*s.CreatedAt) {
			uc.warn(outcome, DataInconsistency("resource %s sampled before it was created", s.ResourceID))
			continue
		}
		valid = append(valid, s)
	}
	return valid
}

// usageMeter 计费项在所有样本上的费用
// 采样时间不晚于 from 的样本已计入纪元起点之前，不再计费；采样时间晚于 to 的样本截到 to。
func (uc *ReconcileUseCase) usageMeter(outcome *ProjectOutcome, projectID, item string, samples []*ResourceSample) UsageMeter {
	reported := false
	return func(price int64, from, to *time.Time) (float64, error) {
		var total float64
		for _, s := range samples {
			end := s.Timestamp
			if to != nil {
				if s.CreatedAt.After(*to) {
					continue
				}
				if end.After(*to) {
					end = *to
				}
			}
			if from != nil && !end.After(*from) {
				continue
			}
			seconds, skip := ChargeableWindow(*s.CreatedAt, end, from)
			if skip {
				continue
			}
			charge, err := uc.calc.Charge(item, quantityOf(item, s), seconds, price)
			if err != nil {
				if stderrors.Is(err, ErrUnsupportedItem) {
					if !reported {
						reported = true
						outcome.UnsupportedItems = append(outcome.UnsupportedItems, item)
						uc.log.Warnf("item %s has no pricing formula, charged 0: project=%s", item, projectID)
						if uc.metrics != nil {
							uc.metrics.UnsupportedItemTotal.WithLabelValues(item).Inc()
						}
					}
					return 0, nil
				}
				return 0, err
			}
			total += charge
		}
		return total, nil
	}
}

func quantityOf(item string, s *ResourceSample) int64 {
	switch item {
	case constants.ItemCPU:
		return s.VCPUs
	case constants.ItemMemory:
		return s.MemoryMB
	default:
		return 0
	}
}

func (uc *ReconcileUseCase) warn(outcome *ProjectOutcome, err *errors.Error) {
	outcome.Warnings = append(outcome.Warnings, err.Message)
	uc.log.Warnf("%s: project=%s, %s", err.Reason, outcome.ProjectID, err.Message)
	if uc.metrics != nil {
		uc.metrics.SampleInconsistentTotal.Inc()
	}
}

func (uc *ReconcileUseCase) fail(outcome *ProjectOutcome, err error) {
	outcome.Status = constants.OutcomeFailed
	outcome.Reason = ReasonOf(err)
	outcome.Message = err.Error()
}

// classify 未分类的错误按 wrap 归类
func classify(err error, wrap func(error) error) error {
	if ReasonOf(err) != errors.UnknownReason {
		return err
	}
	return wrap(err)
}
