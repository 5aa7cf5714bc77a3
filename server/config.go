package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 服务端运行配置，全部来自 PRESENCE_* 环境变量（带默认值）
type Config struct {
	Addr      string `env:"PRESENCE_ADDR" envDefault:":8080"`
	StaticDir string `env:"PRESENCE_STATIC_DIR" envDefault:"web"`
	DBPath    string `env:"PRESENCE_DB_PATH" envDefault:"villagesync.db"`

	LogFile   string `env:"PRESENCE_LOG_FILE" envDefault:"app.log"`
	LogLevel  string `env:"PRESENCE_LOG_LEVEL" envDefault:"debug"`
	LogStdout bool   `env:"PRESENCE_LOG_STDOUT" envDefault:"false"`

	// 预创建的房间，便于快速试跑；为空则不预创建
	DefaultRoom string `env:"PRESENCE_DEFAULT_ROOM" envDefault:"village-1"`
	// 0 表示每个事件立即广播；>0 表示按固定频率合并广播
	BroadcastHz     int  `env:"PRESENCE_BROADCAST_HZ" envDefault:"0"`
	PruneEmptyRooms bool `env:"PRESENCE_PRUNE_EMPTY_ROOMS" envDefault:"false"`
	EventQueue      int  `env:"PRESENCE_EVENT_QUEUE" envDefault:"256"`

	PingInterval  time.Duration `env:"PRESENCE_PING_INTERVAL" envDefault:"25s"`
	PongWait      time.Duration `env:"PRESENCE_PONG_WAIT" envDefault:"60s"`
	WriteWait     time.Duration `env:"PRESENCE_WRITE_WAIT" envDefault:"5s"`
	SendQueue     int           `env:"PRESENCE_SEND_QUEUE" envDefault:"64"`
	MaxFrameBytes int64         `env:"PRESENCE_MAX_FRAME_BYTES" envDefault:"65536"`

	// 设置后 /ws 需要携带 ?token=（HS256），join 的 uid 必须与 token subject 一致
	JWTSecret string `env:"PRESENCE_JWT_SECRET"`
}

// LoadConfig 从进程环境变量解析配置
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig 只取 envDefault 默认值，忽略进程环境
func DefaultConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Validate 检查相互依赖的参数
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: addr is required")
	case c.BroadcastHz < 0:
		return fmt.Errorf("config: broadcast hz must be >= 0, got %d", c.BroadcastHz)
	case c.EventQueue <= 0:
		return fmt.Errorf("config: event queue must be > 0, got %d", c.EventQueue)
	case c.SendQueue <= 0:
		return fmt.Errorf("config: send queue must be > 0, got %d", c.SendQueue)
	case c.MaxFrameBytes <= 0:
		return fmt.Errorf("config: max frame bytes must be > 0, got %d", c.MaxFrameBytes)
	case c.WriteWait <= 0:
		return fmt.Errorf("config: write wait must be > 0, got %s", c.WriteWait)
	case c.PingInterval <= 0 || c.PongWait <= c.PingInterval:
		return fmt.Errorf("config: need 0 < ping interval (%s) < pong wait (%s)", c.PingInterval, c.PongWait)
	}
	return nil
}

// LogConfig 日志相关子配置
func (c Config) LogConfig() LogConfig {
	return LogConfig{FilePath: c.LogFile, Level: c.LogLevel, Stdout: c.LogStdout}
}

// ConnConfig 连接读写相关子配置
func (c Config) ConnConfig() ConnConfig {
	return ConnConfig{
		PingInterval:  c.PingInterval,
		PongWait:      c.PongWait,
		WriteWait:     c.WriteWait,
		SendQueue:     c.SendQueue,
		MaxFrameBytes: c.MaxFrameBytes,
	}
}
