package data

import (
	"context"
	"sync"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/constants"
	"project-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// redsyncLocker 基于 redsync 的分布式锁
type redsyncLocker struct {
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.BillingMetrics
}

// NewLocker 创建分布式锁（多副本部署时保证同一时刻只有一次对账 / 一次限额）
func NewLocker(rs *redsync.Redsync, logger log.Logger) biz.Locker {
	return &redsyncLocker{
		sync:    rs,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Lock 尝试获取锁，锁被占用时立即返回错误
func (l *redsyncLocker) Lock(ctx context.Context, key string, expiry time.Duration) (func(), error) {
	lockStartTime := time.Now()
	mutex := l.sync.NewMutex(key, redsync.WithExpiry(expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Warnf("failed to acquire lock: key=%s, error=%v", key, err)
		if l.metrics != nil {
			l.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultFailed).Inc()
			l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultSuccess).Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
				l.log.Warnf("failed to unlock: key=%s, error=%v", key, err)
			}
		})
	}
	return unlock, nil
}
