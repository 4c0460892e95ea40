package data

import (
	"context"
	"fmt"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/conf"
	"project-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewRedsync,
	NewData,
	NewTransaction,
	NewLocker,
	NewItemRecordRepo,
	NewProjectRecordRepo,
	NewEventRepo,
	NewEventPublisher,
)

// AgentProviderSet 对账代理额外依赖：遥测源与配额执行器
var AgentProviderSet = wire.NewSet(
	NewMongo,
	NewTelemetryFeed,
	NewOpenstackClient,
	NewAdminCredential,
	NewQuotaActuator,
)

// Data 数据层结构体
type Data struct {
	db  *gorm.DB
	rdb *redis.Client
}

type txKey struct{}

// txState ctx 中携带的事务句柄与提交后回调（嵌套事务共享回调列表）
type txState struct {
	db    *gorm.DB
	hooks *[]func()
}

// NewDB 创建数据库连接
func NewDB(c *conf.Bootstrap) (*gorm.DB, error) {
	if c.Data == nil || c.Data.Database == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	switch c.Data.Database.Driver {
	case "", "mysql":
		return gorm.Open(mysql.Open(c.Data.Database.Source), &gorm.Config{})
	case "sqlite":
		// 本地开发使用，单连接保证事务内外看到同一数据
		db, err := gorm.Open(sqlite.Open(c.Data.Database.Source), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Data.Database.Driver)
	}
}

// AutoMigrate 创建 / 更新账本表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(model.Models()...)
}

// NewRedis 创建 Redis 连接
func NewRedis(c *conf.Bootstrap) (*redis.Client, error) {
	if c.Data == nil || c.Data.Redis == nil {
		return nil, fmt.Errorf("redis config is nil")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Data.Redis.Addr,
		Password:     c.Data.Redis.Password,
		DB:           int(c.Data.Redis.Db),
		ReadTimeout:  c.Data.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Data.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewRedsync 基于 Redis 的分布式锁
func NewRedsync(rdb *redis.Client) *redsync.Redsync {
	return redsync.New(goredis.NewPool(rdb))
}

// NewData 创建数据层实例
func NewData(logger log.Logger, db *gorm.DB, rdb *redis.Client) (*Data, func(), error) {
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.NewHelper(logger).Errorf("failed to close redis: %v", err)
			}
		}
	}

	return &Data{
		db:  db,
		rdb: rdb,
	}, cleanup, nil
}

// DB 返回当前 context 的数据库句柄：事务内返回事务句柄
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.db
	}
	return d.db.WithContext(ctx)
}

// InTx 在一个数据库事务内执行 fn，fn 内的 repo 调用经 ctx 共享事务
// 最外层事务提交成功后依次执行 afterCommit 登记的回调。
func (d *Data) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.db.Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, &txState{db: tx, hooks: st.hooks}))
		})
	}

	var hooks []func()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, &txState{db: tx, hooks: &hooks}))
	})
	if err != nil {
		return err
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// inTx ctx 是否处于事务中
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// afterCommit 事务提交后执行 fn；不在事务中时立即执行，事务回滚时不执行
func afterCommit(ctx context.Context, fn func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		*st.hooks = append(*st.hooks, fn)
		return
	}
	fn()
}

// NewTransaction 账本事务
func NewTransaction(d *Data) biz.Transaction {
	return d
}
