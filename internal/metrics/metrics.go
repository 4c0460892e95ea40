package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics 计费代理指标
type BillingMetrics struct {
	// 对账相关指标
	PassDuration        prometheus.Histogram   // 单次对账耗时
	PassProjects        prometheus.Gauge       // 最近一次对账的项目数
	ProjectOutcomeTotal *prometheus.CounterVec // 项目对账结果（按状态、原因）

	// 账本相关指标
	LedgerWriteTotal        *prometheus.CounterVec // 计费项账本写入（按计费项、操作）
	UnsupportedItemTotal    *prometheus.CounterVec // 无计价公式的计费项
	SampleInconsistentTotal prometheus.Counter     // 不一致的遥测样本

	// 限额相关指标
	ExhaustedTotal    *prometheus.CounterVec // 项目耗尽次数（按原因）
	ActuatorCallTotal *prometheus.CounterVec // 配额服务调用（按操作、结果）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewBillingMetrics 创建计费代理指标
func NewBillingMetrics() *BillingMetrics {
	return &BillingMetrics{
		// 对账指标
		PassDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_pass_duration_seconds",
				Help:    "Duration of reconciliation passes",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		PassProjects: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "billing_pass_projects",
				Help: "Number of projects visited by the last reconciliation pass",
			},
		),
		ProjectOutcomeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_project_outcome_total",
				Help: "Total number of per-project reconciliation outcomes",
			},
			[]string{"status", "reason"}, // status: success/failed
		),

		// 账本指标
		LedgerWriteTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_ledger_write_total",
				Help: "Total number of item ledger writes",
			},
			[]string{"item", "operation"}, // operation: create/update/retire
		),
		UnsupportedItemTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_unsupported_item_total",
				Help: "Total number of charges skipped for items without a pricing formula",
			},
			[]string{"item"},
		),
		SampleInconsistentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_sample_inconsistent_total",
				Help: "Total number of telemetry samples rejected as inconsistent",
			},
		),

		// 限额指标
		ExhaustedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_exhausted_total",
				Help: "Total number of exhausted projects handled",
			},
			[]string{"reason"}, // reason: balance/expired
		),
		ActuatorCallTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_actuator_call_total",
				Help: "Total number of quota actuator calls",
			},
			[]string{"operation", "result"}, // result: success/failed/skipped
		),

		// 分布式锁指标
		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

// 全局指标实例
var (
	defaultMetrics *BillingMetrics
	once           sync.Once
)

// InitMetrics 初始化全局指标
func InitMetrics() {
	once.Do(func() {
		defaultMetrics = NewBillingMetrics()
	})
}

// GetMetrics 获取全局指标实例
func GetMetrics() *BillingMetrics {
	InitMetrics()
	return defaultMetrics
}
