package biz

import (
	"fmt"
	"time"

	"project-billing/internal/conf"
	"project-billing/internal/constants"
)

// BillingConfig 计费配置
type BillingConfig struct {
	SupportedItems     []string
	Prices             map[string]int64 // 单价（vdollar/分钟）
	DefaultAmount      int64            // 新项目初始额度
	DefaultPeriod      time.Duration    // 新项目账期
	ItemPeriod         time.Duration    // 新计费项记录有效期
	DefaultDescription string
}

// NewBillingConfig 从配置创建 BillingConfig
func NewBillingConfig(c *conf.Bootstrap) *BillingConfig {
	config := &BillingConfig{
		SupportedItems: []string{constants.ItemCPU, constants.ItemMemory},
		Prices: map[string]int64{
			constants.ItemCPU:    constants.DefaultItemPrice,
			constants.ItemMemory: constants.DefaultItemPrice,
		},
		DefaultAmount: constants.DefaultProjectAmount,
		DefaultPeriod: constants.DefaultPeriod,
		ItemPeriod:    constants.DefaultPeriod,
	}
	if c != nil && c.Billing != nil {
		if len(c.Billing.SupportedItems) > 0 {
			config.SupportedItems = append([]string(nil), c.Billing.SupportedItems...)
		}
		for k, v := range c.Billing.Prices {
			config.Prices[k] = v
		}
		if c.Billing.DefaultAmount > 0 {
			config.DefaultAmount = c.Billing.DefaultAmount
		}
		if d := c.Billing.DefaultPeriod.AsDuration(); d > 0 {
			config.DefaultPeriod = d
		}
		if d := c.Billing.ItemPeriod.AsDuration(); d > 0 {
			config.ItemPeriod = d
		}
	}
	config.DefaultDescription = constants.DefaultProjectDescription
	if config.DefaultAmount != constants.DefaultProjectAmount {
		config.DefaultDescription = fmt.Sprintf("Initial vdollar for project is %d", config.DefaultAmount)
	}
	return config
}

// AgentConfig 对账代理配置
type AgentConfig struct {
	Interval          time.Duration
	PassTimeout       time.Duration
	FetchTimeout      time.Duration
	ActuatorTimeout   time.Duration
	PassLockExpiry    time.Duration
	EnforceLockExpiry time.Duration
	DeleteInstances   bool // 耗尽后是否删除实例（升级策略，默认关闭）
}

// NewAgentConfig 从配置创建 AgentConfig
func NewAgentConfig(c *conf.Bootstrap) *AgentConfig {
	config := &AgentConfig{
		Interval:          constants.DefaultPassInterval,
		PassTimeout:       constants.DefaultPassTimeout,
		FetchTimeout:      constants.DefaultFetchTimeout,
		ActuatorTimeout:   constants.DefaultActuatorTimeout,
		PassLockExpiry:    constants.DefaultPassLockExpiry,
		EnforceLockExpiry: constants.DefaultEnforceLockExpiry,
	}
	if c != nil && c.Agent != nil {
		config.apply(c.Agent)
	}
	// 对账锁不能早于对账超时过期，否则其他副本可在对账进行中取得锁
	if floor := config.PassTimeout + constants.PassLockMargin; config.PassLockExpiry < floor {
		config.PassLockExpiry = floor
	}
	return config
}

func (a *AgentConfig) apply(c *conf.Agent) {
	if d := c.Interval.AsDuration(); d > 0 {
		a.Interval = d
	}
	if d := c.PassTimeout.AsDuration(); d > 0 {
		a.PassTimeout = d
	}
	if d := c.FetchTimeout.AsDuration(); d > 0 {
		a.FetchTimeout = d
	}
	if d := c.ActuatorTimeout.AsDuration(); d > 0 {
		a.ActuatorTimeout = d
	}
	if d := c.PassLockExpiry.AsDuration(); d > 0 {
		a.PassLockExpiry = d
	}
	if d := c.EnforceLockExpiry.AsDuration(); d > 0 {
		a.EnforceLockExpiry = d
	}
	a.DeleteInstances = c.DeleteInstances
}
