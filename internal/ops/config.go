package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/staleness"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Session   SessionConfig      `json:"session"`
	Bus       BusConfig          `json:"bus"`
	Rest      RestConfig         `json:"rest"`
	Staleness StalenessConfig    `json:"staleness"`
	Safety    SafetyConfig       `json:"safety"`
	Refresh   RefreshConfig      `json:"refresh"`
	Store     StoreConfig        `json:"store"`
	Features  FeatureFlagsConfig `json:"features"`
}

// SessionConfig identifies the terminal session.
type SessionConfig struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// BusConfig describes the push bus connection.
type BusConfig struct {
	URL              string `json:"url"`
	QueueCapacity    int    `json:"queueCapacity"`
	ReconnectMinMs   int64  `json:"reconnectMinMs"`
	ReconnectMaxMs   int64  `json:"reconnectMaxMs"`
	HandshakeTimeout int64  `json:"handshakeTimeoutMs"`
}

// RestConfig describes the REST collaborator endpoints.
type RestConfig struct {
	BaseURL   string `json:"baseUrl"`
	TimeoutMs int64  `json:"timeoutMs"`
}

// StalenessConfig overrides the per-field freshness thresholds.
// Zero fields keep the defaults.
type StalenessConfig struct {
	PositionMs    int64 `json:"positionMs"`
	PriceMs       int64 `json:"priceMs"`
	BuyingPowerMs int64 `json:"buyingPowerMs"`
	RiskLimitsMs  int64 `json:"riskLimitsMs"`
}

// SafetyConfig overrides the authoritative safety fetch timeouts.
type SafetyConfig struct {
	SubmitTimeoutMs int64 `json:"submitTimeoutMs"`
	InitTimeoutMs   int64 `json:"initTimeoutMs"`
}

// RefreshConfig sets the periodic pull intervals.
type RefreshConfig struct {
	PositionsMs   int64 `json:"positionsMs"`
	BuyingPowerMs int64 `json:"buyingPowerMs"`
}

// StoreConfig selects the draft-intent store. An empty ConnString keeps the
// in-process store.
type StoreConfig struct {
	ConnString string `json:"connString"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableFills     *bool `json:"enableFills"`
	EnableProfiling *bool `json:"enableProfiling"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableFills     bool
	EnableProfiling bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	UserID    string
	SessionID string

	BusURL           string
	QueueCapacity    int
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration

	RestBaseURL string
	RestTimeout time.Duration

	Staleness staleness.Policy

	SafetySubmitTimeout time.Duration
	SafetyInitTimeout   time.Duration

	PositionsRefresh   time.Duration
	BuyingPowerRefresh time.Duration

	StoreConnString string
	Features        FeatureFlags
}

const (
	defaultQueueCapacity      = 1024
	defaultReconnectMin       = 500 * time.Millisecond
	defaultReconnectMax       = 30 * time.Second
	defaultHandshakeTimeout   = 10 * time.Second
	defaultRestTimeout        = 5 * time.Second
	defaultPositionsRefresh   = 10 * time.Second
	defaultBuyingPowerRefresh = 30 * time.Second
)

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates the raw config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Session.UserID == "" {
		return Loaded{}, fmt.Errorf("session userId is empty")
	}
	if cfg.Bus.URL == "" {
		return Loaded{}, fmt.Errorf("bus url is empty")
	}
	if cfg.Rest.BaseURL == "" {
		return Loaded{}, fmt.Errorf("rest baseUrl is empty")
	}

	sessionID := cfg.Session.SessionID
	if sessionID == "" {
		sessionID = cfg.Session.UserID
	}

	loaded := Loaded{
		UserID:    cfg.Session.UserID,
		SessionID: sessionID,

		BusURL:           cfg.Bus.URL,
		QueueCapacity:    cfg.Bus.QueueCapacity,
		ReconnectMin:     ms(cfg.Bus.ReconnectMinMs, defaultReconnectMin),
		ReconnectMax:     ms(cfg.Bus.ReconnectMaxMs, defaultReconnectMax),
		HandshakeTimeout: ms(cfg.Bus.HandshakeTimeout, defaultHandshakeTimeout),

		RestBaseURL: cfg.Rest.BaseURL,
		RestTimeout: ms(cfg.Rest.TimeoutMs, defaultRestTimeout),

		Staleness: resolveStaleness(cfg.Staleness),

		SafetySubmitTimeout: ms(cfg.Safety.SubmitTimeoutMs, 0),
		SafetyInitTimeout:   ms(cfg.Safety.InitTimeoutMs, 0),

		PositionsRefresh:   ms(cfg.Refresh.PositionsMs, defaultPositionsRefresh),
		BuyingPowerRefresh: ms(cfg.Refresh.BuyingPowerMs, defaultBuyingPowerRefresh),

		StoreConnString: cfg.Store.ConnString,
		Features:        resolveFeatures(cfg.Features),
	}

	if loaded.QueueCapacity <= 0 {
		loaded.QueueCapacity = defaultQueueCapacity
	}
	if loaded.ReconnectMax < loaded.ReconnectMin {
		return Loaded{}, fmt.Errorf("bus reconnectMaxMs %v < reconnectMinMs %v", loaded.ReconnectMax, loaded.ReconnectMin)
	}

	return loaded, nil
}

func resolveStaleness(cfg StalenessConfig) staleness.Policy {
	policy := staleness.Default()
	if cfg.PositionMs > 0 {
		policy.Position = time.Duration(cfg.PositionMs) * time.Millisecond
	}
	if cfg.PriceMs > 0 {
		policy.Price = time.Duration(cfg.PriceMs) * time.Millisecond
	}
	if cfg.BuyingPowerMs > 0 {
		policy.BuyingPower = time.Duration(cfg.BuyingPowerMs) * time.Millisecond
	}
	if cfg.RiskLimitsMs > 0 {
		policy.RiskLimits = time.Duration(cfg.RiskLimitsMs) * time.Millisecond
	}
	return policy.Normalized()
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableFills:     true,
		EnableProfiling: false,
	}
	if cfg.EnableFills != nil {
		flags.EnableFills = *cfg.EnableFills
	}
	if cfg.EnableProfiling != nil {
		flags.EnableProfiling = *cfg.EnableProfiling
	}
	return flags
}

func ms(v int64, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
