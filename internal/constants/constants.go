package constants

import "time"

// 计费项名称
const (
	// ItemCPU vCPU 计费项
	ItemCPU = "cpu"
	// ItemMemory 内存计费项（按 512MB 计费单元）
	ItemMemory = "memory"
)

// 计费默认值
const (
	// DefaultItemPrice 计费项默认单价（vdollar/分钟）
	DefaultItemPrice int64 = 1
	// DefaultProjectAmount 新项目初始额度
	DefaultProjectAmount int64 = 1000
	// DefaultPeriod 账户 / 计费项记录默认有效期
	DefaultPeriod = 24 * time.Hour
	// MinBillableSeconds 最小计费时长（不足一分钟按一分钟计）
	MinBillableSeconds = 60
	// MemoryBlockMB 内存计费单元
	MemoryBlockMB = 512
)

// 对账代理默认值
const (
	// DefaultPassInterval 对账周期
	DefaultPassInterval = 60 * time.Second
	// DefaultPassTimeout 单次对账超时
	DefaultPassTimeout = 10 * time.Minute
	// DefaultFetchTimeout 单次遥测拉取超时
	DefaultFetchTimeout = 10 * time.Second
	// DefaultActuatorTimeout 单次配额调用超时
	DefaultActuatorTimeout = 15 * time.Second
	// DefaultPassLockExpiry 对账分布式锁过期时间，不小于 DefaultPassTimeout + PassLockMargin
	DefaultPassLockExpiry = 11 * time.Minute
	// PassLockMargin 对账锁过期时间相对对账超时的余量
	PassLockMargin = time.Minute
	// DefaultEnforceLockExpiry 单项目限额锁过期时间
	DefaultEnforceLockExpiry = 2 * time.Minute
)

// Redis Key 前缀常量
const (
	// RedisKeyProjectRecord 项目账户缓存 key 前缀
	RedisKeyProjectRecord = "billing:project:record:"
	// RedisKeyPassLock 对账锁 key
	RedisKeyPassLock = "billing:lock:pass"
	// RedisKeyEnforceLock 项目限额锁 key 前缀
	RedisKeyEnforceLock = "billing:lock:enforce:"
)

// 对账结果状态常量
const (
	// OutcomeSuccess 项目对账成功
	OutcomeSuccess = "success"
	// OutcomeFailed 项目对账失败
	OutcomeFailed = "failed"
)

// 账本写入类型常量（用于指标）
const (
	LedgerOpCreate = "create"
	LedgerOpUpdate = "update"
	LedgerOpRetire = "retire"
)

// 配额调用结果常量（用于指标）
const (
	ActuatorResultSuccess = "success"
	ActuatorResultFailed  = "failed"
	ActuatorResultSkipped = "skipped"
)

// 锁获取结果常量（用于指标）
const (
	LockResultSuccess = "success"
	LockResultFailed  = "failed"
)

// 耗尽原因常量
const (
	// ExhaustedReasonBalance 额度用尽
	ExhaustedReasonBalance = "balance"
	// ExhaustedReasonExpired 账期过期
	ExhaustedReasonExpired = "expired"
)

// DefaultProjectDescription 新项目账户描述
const DefaultProjectDescription = "Initial vdollar for project is 1000"
