package data

import (
	"context"
	"encoding/json"
	"fmt"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// eventPublisher 耗尽事件发布：RocketMQ 启用时投递到队列，否则直接落库
type eventPublisher struct {
	producer rocketmq.Producer
	topic    string
	repo     biz.EventRepo
	log      *log.Helper
}

// NewEventPublisher 创建耗尽事件发布器
func NewEventPublisher(c *conf.Bootstrap, repo biz.EventRepo, logger log.Logger) (biz.EventPublisher, func(), error) {
	logHelper := log.NewHelper(logger)
	p := &eventPublisher{
		repo: repo,
		log:  logHelper,
	}
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		logHelper.Info("RocketMQ is disabled, exhaustion events are stored directly")
		return p, func() {}, nil
	}

	mq := c.Data.Rocketmq
	pr, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		producer.WithGroupName(mq.GroupName+"-producer"),
		producer.WithRetry(int(mq.RetryTimes)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init rocketmq producer: %w", err)
	}
	if err := pr.Start(); err != nil {
		return nil, nil, fmt.Errorf("start rocketmq producer: %w", err)
	}
	p.producer = pr
	p.topic = mq.Topic

	cleanup := func() {
		if err := pr.Shutdown(); err != nil {
			logHelper.Errorf("failed to shutdown rocketmq producer: %v", err)
		}
	}
	return p, cleanup, nil
}

// PublishExhausted 发布耗尽事件
func (p *eventPublisher) PublishExhausted(ctx context.Context, event *biz.ExhaustionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if p.producer == nil {
		return p.repo.CreateExhaustionEvent(ctx, event)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.topic, body)
	msg.WithKeys([]string{event.ProjectID})
	res, err := p.producer.SendSync(ctx, msg)
	if err != nil {
		p.log.Warnf("send exhausted event to rocketmq failed, storing directly: project=%s, error=%v", event.ProjectID, err)
		return p.repo.CreateExhaustionEvent(ctx, event)
	}
	p.log.Infof("exhausted event published: project=%s, msg_id=%s", event.ProjectID, res.MsgID)
	return nil
}
