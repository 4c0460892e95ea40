package biz

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
)

// 对账错误分类（kratos errors reason）
const (
	ReasonProjectRecordNotFound  = "PROJECT_RECORD_NOT_FOUND"
	ReasonItemRecordNotFound     = "ITEM_RECORD_NOT_FOUND"
	ReasonItemNotFound           = "ITEM_NOT_FOUND"
	ReasonExternalUnavailable    = "EXTERNAL_UNAVAILABLE"
	ReasonDataInconsistency      = "DATA_INCONSISTENCY"
	ReasonActuatorPartialFailure = "ACTUATOR_PARTIAL_FAILURE"
	ReasonUnsupportedItem        = "UNSUPPORTED_ITEM"
	ReasonPassInProgress         = "PASS_IN_PROGRESS"
	ReasonPassCanceled           = "PASS_CANCELED"
	ReasonLedgerWriteFailed      = "LEDGER_WRITE_FAILED"
)

var (
	// ErrProjectRecordNotFound 项目账户记录不存在
	ErrProjectRecordNotFound = errors.NotFound(ReasonProjectRecordNotFound, "project account record not found")
	// ErrItemRecordNotFound 项目计费项记录不存在
	ErrItemRecordNotFound = errors.NotFound(ReasonItemRecordNotFound, "project item record not found")
	// ErrItemNotFound 计费项不存在
	ErrItemNotFound = errors.NotFound(ReasonItemNotFound, "billable item not found")
	// ErrUnsupportedItem 计费项没有计价公式，按 0 计费
	ErrUnsupportedItem = errors.BadRequest(ReasonUnsupportedItem, "item not supported")
	// ErrPassInProgress 另一次对账正在进行
	ErrPassInProgress = errors.Conflict(ReasonPassInProgress, "reconciliation pass already in progress")
)

// IsNotFound 账本记录不存在（create / update 分支依据）
func IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

// ExternalUnavailable 遥测 / 配额服务不可用，下一次对账重试
func ExternalUnavailable(cause error, format string, args ...interface{}) *errors.Error {
	return errors.ServiceUnavailable(ReasonExternalUnavailable, fmt.Sprintf(format, args...)).WithCause(cause)
}

// DataInconsistency 样本数据不一致，样本按 0 计费
func DataInconsistency(format string, args ...interface{}) *errors.Error {
	return errors.InternalServer(ReasonDataInconsistency, fmt.Sprintf(format, args...))
}

// ActuatorPartialFailure 限额步骤部分失败，下一次对账重新判定
func ActuatorPartialFailure(cause error, format string, args ...interface{}) *errors.Error {
	return errors.ServiceUnavailable(ReasonActuatorPartialFailure, fmt.Sprintf(format, args...)).WithCause(cause)
}

// LedgerWriteFailed 账本事务失败
func LedgerWriteFailed(cause error, format string, args ...interface{}) *errors.Error {
	return errors.InternalServer(ReasonLedgerWriteFailed, fmt.Sprintf(format, args...)).WithCause(cause)
}

// ReasonOf 提取错误原因码（用于对账报告）
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	return errors.Reason(err)
}
