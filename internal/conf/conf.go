package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 启动配置（configs/config.yaml）
type Bootstrap struct {
	Server    *Server    `json:"server"`
	Data      *Data      `json:"data"`
	Billing   *Billing   `json:"billing"`
	Agent     *Agent     `json:"agent"`
	Openstack *Openstack `json:"openstack"`
}

// Server 服务端口配置
type Server struct {
	Http *Server_HTTP `json:"http"`
	Grpc *Server_GRPC `json:"grpc"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Server_GRPC gRPC 服务配置
type Server_GRPC struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据源配置
type Data struct {
	Database  *Data_Database  `json:"database"`
	Redis     *Data_Redis     `json:"redis"`
	Telemetry *Data_Telemetry `json:"telemetry"`
	Rocketmq  *Data_RocketMQ  `json:"rocketmq"`
}

// Data_Database 账本数据库（MySQL）
type Data_Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

// Data_Redis 缓存与分布式锁
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	Db           int32     `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Data_Telemetry ceilometer 计量存储（MongoDB）
type Data_Telemetry struct {
	Uri        string    `json:"uri"`
	Database   string    `json:"database"`
	Collection string    `json:"collection"`
	Timeout    *Duration `json:"timeout"`
}

// Data_RocketMQ 事件队列
type Data_RocketMQ struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	Topic       string   `json:"topic"`
	RetryTimes  int32    `json:"retry_times"`
}

// Billing 计费配置
type Billing struct {
	SupportedItems []string         `json:"supported_items"`
	Prices         map[string]int64 `json:"prices"`
	DefaultAmount  int64            `json:"default_amount"`
	DefaultPeriod  *Duration        `json:"default_period"`
	ItemPeriod     *Duration        `json:"item_period"`
}

// Agent 对账代理配置
type Agent struct {
	Interval          *Duration `json:"interval"`
	PassTimeout       *Duration `json:"pass_timeout"`
	FetchTimeout      *Duration `json:"fetch_timeout"`
	ActuatorTimeout   *Duration `json:"actuator_timeout"`
	PassLockExpiry    *Duration `json:"pass_lock_expiry"`
	EnforceLockExpiry *Duration `json:"enforce_lock_expiry"`
	DeleteInstances   bool      `json:"delete_instances"`
}

// Openstack keystone / nova 管理员凭据
type Openstack struct {
	AuthUrl       string    `json:"auth_url"`
	AdminUrl      string    `json:"admin_url"`
	AdminUser     string    `json:"admin_user"`
	AdminPassword string    `json:"admin_password"`
	Timeout       *Duration `json:"timeout"`
}

// Duration 支持 "60s" 形式的时长配置
type Duration struct {
	time.Duration
}

// NewDuration 构造 Duration
func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}

// AsDuration 与 durationpb 保持一致的访问方式，nil 视为 0
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

// UnmarshalJSON 支持字符串（"1m30s"）和数字（秒）
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON 输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
