package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"trader/internal/order"
	"trader/internal/stream"
	"trader/pkg/conn"

	"github.com/shopspring/decimal"
)

// FileConfig mirrors the JSON config layout. Durations are in seconds;
// prices are decimal strings.
type FileConfig struct {
	Broker   BrokerConfig   `json:"broker"`
	Stream   StreamConfig   `json:"stream"`
	Order    OrderConfig    `json:"order"`
	Alert    AlertConfig    `json:"alert"`
	Database *conn.Postgres `json:"database"`
	StateDir string         `json:"stateDir"`
}

// BrokerConfig holds the API application credentials and the token cache
// location.
type BrokerConfig struct {
	AppKey    string `json:"appKey"`
	AppSecret string `json:"appSecret"`
	TokenPath string `json:"tokenPath"`
}

// StreamConfig tunes the quote stream client's health loop.
type StreamConfig struct {
	ReceiveTimeoutSec   int `json:"receiveTimeoutSec"`
	StaleAfterSec       int `json:"staleAfterSec"`
	WatchdogIntervalSec int `json:"watchdogIntervalSec"`
	RestartCooldownSec  int `json:"restartCooldownSec"`
	AlertAfterSec       int `json:"alertAfterSec"`
}

// OrderConfig tunes the price-improvement loop.
type OrderConfig struct {
	Step               string `json:"step"`
	MaxAttempts        int    `json:"maxAttempts"`
	MonitorTimeoutSec  int    `json:"monitorTimeoutSec"`
	LateTimeoutSec     int    `json:"lateTimeoutSec"`
	LateCutoff         string `json:"lateCutoff"`
	PriceAdjustPercent int    `json:"priceAdjustPercent"`
}

// AlertConfig holds the operator notification channel.
type AlertConfig struct {
	TelegramToken  string `json:"telegramToken"`
	TelegramChatID string `json:"telegramChatId"`
	QueueSize      int    `json:"queueSize"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Broker    BrokerConfig
	Stream    stream.Config
	Order     order.Config
	Alert     AlertConfig
	Database  *conn.Postgres
	StateDir  string
	AdjustPct int
}

// Load reads a JSON config file and resolves it into runtime settings.
// Anything omitted keeps the package defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}

	if cfg.Broker.AppKey == "" || cfg.Broker.AppSecret == "" {
		return Loaded{}, fmt.Errorf("broker appKey and appSecret are required")
	}

	orderCfg, err := resolveOrder(cfg.Order)
	if err != nil {
		return Loaded{}, err
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = "./state"
	}

	adjustPct := cfg.Order.PriceAdjustPercent
	if adjustPct == 0 {
		adjustPct = 100
	}

	return Loaded{
		Broker:    cfg.Broker,
		Stream:    resolveStream(cfg.Stream),
		Order:     orderCfg,
		Alert:     cfg.Alert,
		Database:  cfg.Database,
		StateDir:  stateDir,
		AdjustPct: adjustPct,
	}, nil
}

func resolveStream(cfg StreamConfig) stream.Config {
	return stream.Config{
		ReceiveTimeout:   seconds(cfg.ReceiveTimeoutSec),
		StaleAfter:       seconds(cfg.StaleAfterSec),
		WatchdogInterval: seconds(cfg.WatchdogIntervalSec),
		RestartCooldown:  seconds(cfg.RestartCooldownSec),
		AlertAfter:       seconds(cfg.AlertAfterSec),
	}
}

func resolveOrder(cfg OrderConfig) (order.Config, error) {
	out := order.Config{
		MaxAttempts:        cfg.MaxAttempts,
		MonitorTimeout:     seconds(cfg.MonitorTimeoutSec),
		LateMonitorTimeout: seconds(cfg.LateTimeoutSec),
	}

	if cfg.Step != "" {
		step, err := decimal.NewFromString(cfg.Step)
		if err != nil {
			return order.Config{}, fmt.Errorf("invalid order step %q: %w", cfg.Step, err)
		}
		if step.Sign() <= 0 {
			return order.Config{}, fmt.Errorf("order step must be > 0")
		}
		out.Step = step
	}

	if cfg.LateCutoff != "" {
		t, err := time.Parse("15:04", cfg.LateCutoff)
		if err != nil {
			return order.Config{}, fmt.Errorf("invalid lateCutoff %q: %w", cfg.LateCutoff, err)
		}
		out.LateCutoffHour, out.LateCutoffMinute = t.Hour(), t.Minute()
	}

	return out, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
