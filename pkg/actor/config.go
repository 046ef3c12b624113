package actor

import (
	"log/slog"
	"time"
)

// Config 运行时实例配置
type Config struct {
	// Host 监听地址，默认 127.0.0.1
	Host string `koanf:"host"`
	// Port 监听端口，0 表示由系统分配
	Port int `koanf:"port"`
	// AdvertiseIP 写入 PID 的对外地址，为空时使用监听地址
	AdvertiseIP string `koanf:"advertise_ip"`
	// Acks 消息端点是否返回确认状态（202/404）
	Acks bool `koanf:"acks"`
	// SendTimeout 远程投递超时
	SendTimeout time.Duration `koanf:"send_timeout"`
	// OutboxSize 出站队列大小（全局队列和每个对端队列）
	OutboxSize int `koanf:"outbox_size"`

	// Logger 自定义日志器
	Logger *slog.Logger `koanf:"-"`
	// DeliveryFailureHandler 异步远程投递失败回调，默认只记录日志
	DeliveryFailureHandler func(*DeliveryFailure) `koanf:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:        "127.0.0.1",
		Port:        0,
		Acks:        false,
		SendTimeout: 5 * time.Second,
		OutboxSize:  1024,
	}
}

// withDefaults 补全零值字段
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		c = def
	}
	out := *c
	if out.Host == "" {
		out.Host = def.Host
	}
	if out.SendTimeout <= 0 {
		out.SendTimeout = def.SendTimeout
	}
	if out.OutboxSize <= 0 {
		out.OutboxSize = def.OutboxSize
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// sameEndpoint 两份配置是否描述同一个运行时实例
func (c *Config) sameEndpoint(other *Config) bool {
	a, b := c.withDefaults(), other.withDefaults()
	return a.Host == b.Host &&
		a.Port == b.Port &&
		a.AdvertiseIP == b.AdvertiseIP &&
		a.Acks == b.Acks
}
