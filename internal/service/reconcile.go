package service

import (
	"context"
	"time"

	"project-billing/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// ReconcileRequest 手动触发对账
type ReconcileRequest struct{}

// ReconcileReply 对账结果
type ReconcileReply struct {
	Projects int                   `json:"projects"`
	Failed   int                   `json:"failed"`
	Outcomes []*biz.ProjectOutcome `json:"outcomes"`
	Duration string                `json:"duration"`
}

// ReconcileService 对账接口
type ReconcileService struct {
	uc    *biz.ReconcileUseCase
	agent *biz.AgentConfig
	log   *log.Helper
}

// NewReconcileService 创建 ReconcileService
func NewReconcileService(uc *biz.ReconcileUseCase, agent *biz.AgentConfig, logger log.Logger) *ReconcileService {
	return &ReconcileService{
		uc:    uc,
		agent: agent,
		log:   log.NewHelper(logger),
	}
}

// Reconcile 立即执行一次对账
// 对账不随请求取消，只受对账超时约束。
func (s *ReconcileService) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileReply, error) {
	passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.agent.PassTimeout)
	defer cancel()

	startTime := time.Now()
	outcomes, err := s.uc.Run(passCtx)
	if err != nil {
		s.log.Errorf("Reconcile failed: %v", err)
		return nil, err
	}
	reply := &ReconcileReply{
		Projects: len(outcomes),
		Outcomes: outcomes,
		Duration: time.Since(startTime).String(),
	}
	for _, o := range outcomes {
		if o.Failed() {
			reply.Failed++
		}
	}
	return reply, nil
}
