package server

import (
	"context"
	"encoding/json"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// MQConsumerServer consumes exhaustion events from RocketMQ
type MQConsumerServer struct {
	c       rocketmq.PushConsumer
	uc      *biz.AccountUseCase
	conf    *conf.Data_RocketMQ
	log     *log.Helper
	enabled bool
}

// NewMQConsumerServer creates a RocketMQ consumer server
func NewMQConsumerServer(c *conf.Bootstrap, uc *biz.AccountUseCase, logger log.Logger) *MQConsumerServer {
	logHelper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		return &MQConsumerServer{log: logHelper, enabled: false}
	}
	mq := c.Data.Rocketmq

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		consumer.WithGroupName(mq.GroupName),
		consumer.WithRetry(int(mq.RetryTimes)),
		consumer.WithConsumeMessageBatchMaxSize(32),
	)
	if err != nil {
		logHelper.Errorf("init consumer error: %v", err)
		return &MQConsumerServer{log: logHelper, enabled: false}
	}

	return &MQConsumerServer{
		c:       r,
		uc:      uc,
		conf:    mq,
		log:     logHelper,
		enabled: true,
	}
}

// Start starts the consumer
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	if s.c == nil {
		s.log.Warnf("MQConsumerServer consumer is nil, skipping startup")
		return nil
	}

	s.log.Infof("Starting MQConsumerServer, topic: %s", s.conf.Topic)

	err := s.c.Subscribe(s.conf.Topic, consumer.MessageSelector{}, s.handler)
	if err != nil {
		// 不返回错误，避免 RocketMQ 不可用时整个应用启动失败
		s.log.Errorf("Failed to subscribe to topic %s: %v", s.conf.Topic, err)
		return nil
	}

	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}

	return nil
}

// Stop stops the consumer
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

func (s *MQConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var event biz.ExhaustionEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			// 无法解析的消息重试也不会成功，直接丢弃
			s.log.Errorf("Unmarshal message failed: %v, body: %s", err, string(msg.Body))
			continue
		}
		if err := s.uc.RecordExhaustionEvent(ctx, &event); err != nil {
			s.log.Errorf("RecordExhaustionEvent failed: project=%s, error=%v", event.ProjectID, err)
			return consumer.ConsumeRetryLater, nil
		}
		s.log.Infof("exhaustion event stored: project=%s, reason=%s", event.ProjectID, event.Reason)
	}
	return consumer.ConsumeSuccess, nil
}
