package client

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// BotConfig 无界面机器人客户端的配置（VILLAGEBOT_* 环境变量）
type BotConfig struct {
	ServerURL string `env:"VILLAGEBOT_SERVER" envDefault:"http://localhost:8080"`
	Village   string `env:"VILLAGEBOT_VILLAGE" envDefault:"village-1"`
	UID       string `env:"VILLAGEBOT_UID"`
	Token     string `env:"VILLAGEBOT_TOKEN"`
	Username  string `env:"VILLAGEBOT_USERNAME" envDefault:"Bot"`
	Avatar    string `env:"VILLAGEBOT_AVATAR" envDefault:"ArabCharacter_idle.png"`

	TickHz         int           `env:"VILLAGEBOT_TICK_HZ" envDefault:"30"`
	Speed          float64       `env:"VILLAGEBOT_SPEED" envDefault:"120"`
	ViewportWidth  float64       `env:"VILLAGEBOT_VIEWPORT_WIDTH" envDefault:"1280"`
	ViewportHeight float64       `env:"VILLAGEBOT_VIEWPORT_HEIGHT" envDefault:"720"`
	Duration       time.Duration `env:"VILLAGEBOT_DURATION" envDefault:"0s"` // 0 表示一直运行
	Seed           int64         `env:"VILLAGEBOT_SEED" envDefault:"1"`
	PosEpsilon     float64       `env:"VILLAGEBOT_POS_EPSILON" envDefault:"0.5"`
	NormEpsilon    float64       `env:"VILLAGEBOT_NORM_EPSILON" envDefault:"0.001"`

	// HopVillage 非空且 HopEvery > 0 时，机器人在 Village 与 HopVillage 之间轮流换房
	HopVillage string        `env:"VILLAGEBOT_HOP_VILLAGE"`
	HopEvery   time.Duration `env:"VILLAGEBOT_HOP_EVERY" envDefault:"0s"`

	LogFile   string `env:"VILLAGEBOT_LOG_FILE"`
	LogLevel  string `env:"VILLAGEBOT_LOG_LEVEL" envDefault:"info"`
	LogStdout bool   `env:"VILLAGEBOT_LOG_STDOUT" envDefault:"true"`
}

func LoadBotConfig() (BotConfig, error) {
	var cfg BotConfig
	if err := env.Parse(&cfg); err != nil {
		return BotConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

func (c BotConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	switch {
	case err != nil:
		return fmt.Errorf("config: server url: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("config: server url must be http(s), got %q", c.ServerURL)
	case c.Village == "":
		return errors.New("config: village is required")
	case c.TickHz <= 0:
		return fmt.Errorf("config: tick hz must be > 0, got %d", c.TickHz)
	case c.ViewportWidth <= 0 || c.ViewportHeight <= 0:
		return errors.New("config: viewport must be positive")
	case c.PosEpsilon < 0 || c.NormEpsilon < 0:
		return errors.New("config: epsilon must not be negative")
	case c.HopEvery < 0:
		return fmt.Errorf("config: hop interval must not be negative, got %s", c.HopEvery)
	case c.HopEvery > 0 && (c.HopVillage == "" || c.HopVillage == c.Village):
		return errors.New("config: hop interval needs a hop village different from the home village")
	}
	return nil
}

// Hops 是否启用定时换房
func (c BotConfig) Hops() bool {
	return c.HopEvery > 0 && c.HopVillage != ""
}

// WebSocketURL 由 http(s) 地址推出 /ws 地址，带上可选 token
func (c BotConfig) WebSocketURL() string {
	u, _ := url.Parse(c.ServerURL)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
