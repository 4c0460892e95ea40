package errors

import (
	"context"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
	kratosErrors "github.com/go-kratos/kratos/v2/errors"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// Project Billing 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Project Billing 固定为 20
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块（复用 go-pkg 通用错误码）
//   01: 项目账户模块
//   02: 计费项账本模块
//   03: 对账模块
//   05: 事件模块
//   04, 06-99: 预留扩展

// 项目账户模块错误码 (200100-200199)
const (
	// ErrCodeProjectRecordGetFailed 获取项目账户失败
	ErrCodeProjectRecordGetFailed = 200101
	// ErrCodeProjectRecordUpdateFailed 更新项目账户失败
	ErrCodeProjectRecordUpdateFailed = 200102
)

// 计费项账本模块错误码 (200200-200299)
const (
	// ErrCodeItemRecordGetFailed 获取计费项记录失败
	ErrCodeItemRecordGetFailed = 200201
	// ErrCodeItemRecordUpdateFailed 更新计费项记录失败
	ErrCodeItemRecordUpdateFailed = 200202
)

// 对账模块错误码 (200300-200399)
const (
	// ErrCodeReconcileFailed 对账失败
	ErrCodeReconcileFailed = 200301
)

// 事件模块错误码 (200500-200599)
const (
	// ErrCodeEventListFailed 查询耗尽事件失败
	ErrCodeEventListFailed = 200501
)

// Translate 将未分类的错误（如数据库错误）包装为带业务错误码的错误
// 已带 kratos reason 的错误（NotFound / Conflict 等）保持原样。
func Translate(ctx context.Context, operation string, err error) error {
	if err == nil || kratosErrors.Reason(err) != kratosErrors.UnknownReason {
		return err
	}
	switch operation {
	case "/billing.v1.Account/ListRecords", "/billing.v1.Account/GetRecord", "/billing.v1.Account/GetProjectRecord":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeProjectRecordGetFailed)
	case "/billing.v1.Account/UpdateRecord", "/billing.v1.Account/DeleteRecord", "/billing.v1.Account/PutProjectRecord":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeProjectRecordUpdateFailed)
	case "/billing.v1.Account/GetProjectItems", "/billing.v1.Account/GetItemRecord",
		"/billing.v1.Account/GetItemHistory", "/billing.v1.Account/ListItems":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeItemRecordGetFailed)
	case "/billing.v1.Account/UpdateItemRecord":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeItemRecordUpdateFailed)
	case "/billing.v1.Account/ListEvents":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeEventListFailed)
	case "/billing.v1.Reconcile/Reconcile":
		return pkgErrors.WrapErrorWithLang(ctx, err, ErrCodeReconcileFailed)
	default:
		return pkgErrors.WrapErrorWithLang(ctx, err, pkgErrors.ErrCodeDatabaseError)
	}
}
