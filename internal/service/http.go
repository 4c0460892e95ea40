package service

import (
	"context"

	billingErrors "project-billing/internal/errors"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// HTTP 操作名（用于中间件 / 日志）
const (
	OperationListRecords      = "/billing.v1.Account/ListRecords"
	OperationGetRecord        = "/billing.v1.Account/GetRecord"
	OperationUpdateRecord     = "/billing.v1.Account/UpdateRecord"
	OperationDeleteRecord     = "/billing.v1.Account/DeleteRecord"
	OperationGetProjectRecord = "/billing.v1.Account/GetProjectRecord"
	OperationPutProjectRecord = "/billing.v1.Account/PutProjectRecord"
	OperationGetProjectItems  = "/billing.v1.Account/GetProjectItems"
	OperationGetItemRecord    = "/billing.v1.Account/GetItemRecord"
	OperationUpdateItemRecord = "/billing.v1.Account/UpdateItemRecord"
	OperationGetItemHistory   = "/billing.v1.Account/GetItemHistory"
	OperationListItems        = "/billing.v1.Account/ListItems"
	OperationListEvents       = "/billing.v1.Account/ListEvents"
	OperationReconcile        = "/billing.v1.Reconcile/Reconcile"
)

// RegisterAccountHTTPServer 注册账本管理路由
func RegisterAccountHTTPServer(s *http.Server, srv *AccountService) {
	r := s.Route("/")
	r.GET("/v1/records", handle(OperationListRecords, srv.ListRecords, nil))
	r.GET("/v1/records/{id}", handle(OperationGetRecord, srv.GetRecord, func(ctx http.Context, in *RecordRequest) error {
		in.ID = ctx.Vars().Get("id")
		return nil
	}))
	r.PUT("/v1/records/{id}", handle(OperationUpdateRecord, srv.UpdateRecord, func(ctx http.Context, in *UpdateRecordRequest) error {
		if err := ctx.Bind(in); err != nil {
			return err
		}
		in.ID = ctx.Vars().Get("id")
		return nil
	}))
	r.DELETE("/v1/records/{id}", handle(OperationDeleteRecord, srv.DeleteRecord, func(ctx http.Context, in *RecordRequest) error {
		in.ID = ctx.Vars().Get("id")
		return nil
	}))
	r.GET("/v1/projects/{project}/records", handle(OperationGetProjectRecord, srv.GetProjectRecord, bindProject))
	r.PUT("/v1/projects/{project}/records", handle(OperationPutProjectRecord, srv.PutProjectRecord, func(ctx http.Context, in *UpdateRecordRequest) error {
		if err := ctx.Bind(in); err != nil {
			return err
		}
		in.ProjectID = ctx.Vars().Get("project")
		return nil
	}))
	r.GET("/v1/projects/{project}/items", handle(OperationGetProjectItems, srv.GetProjectItems, bindProject))
	r.GET("/v1/projects/{project}/items/{item}/records", handle(OperationGetItemHistory, srv.GetItemHistory, func(ctx http.Context, in *ItemHistoryRequest) error {
		in.ProjectID = ctx.Vars().Get("project")
		in.Item = ctx.Vars().Get("item")
		return nil
	}))
	r.GET("/v1/projects/{project}/events", handle(OperationListEvents, srv.ListEvents, func(ctx http.Context, in *ListEventsRequest) error {
		if err := ctx.BindQuery(in); err != nil {
			return err
		}
		in.ProjectID = ctx.Vars().Get("project")
		return nil
	}))
	r.GET("/v1/items", handle(OperationListItems, srv.ListItems, nil))
	r.GET("/v1/items/{id}", handle(OperationGetItemRecord, srv.GetItemRecord, func(ctx http.Context, in *RecordRequest) error {
		in.ID = ctx.Vars().Get("id")
		return nil
	}))
	r.PUT("/v1/items/{id}", handle(OperationUpdateItemRecord, srv.UpdateItemRecord, func(ctx http.Context, in *UpdateItemRecordRequest) error {
		if err := ctx.Bind(in); err != nil {
			return err
		}
		in.ID = ctx.Vars().Get("id")
		return nil
	}))
}

// RegisterReconcileHTTPServer 注册对账路由
func RegisterReconcileHTTPServer(s *http.Server, srv *ReconcileService) {
	r := s.Route("/")
	r.POST("/v1/reconcile", handle(OperationReconcile, srv.Reconcile, nil))
}

func bindProject(ctx http.Context, in *ProjectRequest) error {
	in.ProjectID = ctx.Vars().Get("project")
	return nil
}

// handle 绑定请求、经过服务端中间件后调用 fn，结果以 200 返回
func handle[Req any, Reply any](
	operation string,
	fn func(context.Context, *Req) (*Reply, error),
	bind func(http.Context, *Req) error,
) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if bind != nil {
			if err := bind(ctx, &in); err != nil {
				return err
			}
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return billingErrors.Translate(ctx, operation, err)
		}
		return ctx.Result(200, out.(*Reply))
	}
}
