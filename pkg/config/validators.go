package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vhive-serverless/replayer/pkg/common"
)

const (
	defaultGRPCConnectionTimeoutSeconds = 60
	defaultGRPCFunctionTimeoutSeconds   = 900
)

func ApplyDefaults(cfg *LoaderConfiguration) {
	cfg.Platform = strings.ToLower(cfg.Platform)
	cfg.Mode = strings.ToLower(cfg.Mode)

	if cfg.Mode == "" {
		cfg.Mode = string(common.OpenLoop)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.InvokeProtocol == "" {
		cfg.InvokeProtocol = "http1"
	}
	if cfg.WskPath == "" {
		cfg.WskPath = "wsk"
	}
	if cfg.CollectionConcurrency == 0 {
		cfg.CollectionConcurrency = common.DefaultCollectionConcurrency
	}
	if cfg.GRPCConnectionTimeoutSeconds == 0 {
		cfg.GRPCConnectionTimeoutSeconds = defaultGRPCConnectionTimeoutSeconds
	}
	if cfg.GRPCFunctionTimeoutSeconds == 0 {
		cfg.GRPCFunctionTimeoutSeconds = defaultGRPCFunctionTimeoutSeconds
	}
}

// CheckConfiguration validates values that cannot be defaulted.
func CheckConfiguration(cfg *LoaderConfiguration) error {
	if !slices.Contains(common.ValidPlatforms, cfg.Platform) {
		return fmt.Errorf("unsupported platform %q", cfg.Platform)
	}

	switch common.ReplayMode(cfg.Mode) {
	case common.OpenLoop, common.ClosedLoop:
	default:
		return fmt.Errorf("unsupported replay mode %q", cfg.Mode)
	}

	if cfg.Workers < 1 {
		return fmt.Errorf("number of workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.FetchPollIntervalMs < 1 {
		return fmt.Errorf("fetch poll interval must be at least 1 ms, got %d", cfg.FetchPollIntervalMs)
	}
	if cfg.FetchTimeoutSeconds < 0 || cfg.CollectionGraceSeconds < 0 {
		return fmt.Errorf("fetch timeout and collection grace must not be negative")
	}
	if cfg.CollectionConcurrency < 1 {
		return fmt.Errorf("collection concurrency must be at least 1, got %d", cfg.CollectionConcurrency)
	}

	switch cfg.InvokeProtocol {
	case "http1", "http2":
	default:
		return fmt.Errorf("invalid invoke protocol %q", cfg.InvokeProtocol)
	}

	if cfg.WskRemoteHost != "" && cfg.WskRemoteUser == "" {
		return fmt.Errorf("WskRemoteUser is required when WskRemoteHost is set")
	}

	return nil
}

func (cfg *LoaderConfiguration) ReplayMode() common.ReplayMode {
	return common.ReplayMode(cfg.Mode)
}

func (cfg *LoaderConfiguration) FetchPollInterval() time.Duration {
	return time.Duration(cfg.FetchPollIntervalMs) * time.Millisecond
}

// FetchTimeout is zero when result polling is unbounded.
func (cfg *LoaderConfiguration) FetchTimeout() time.Duration {
	return time.Duration(cfg.FetchTimeoutSeconds) * time.Second
}

func (cfg *LoaderConfiguration) CollectionGrace() time.Duration {
	return time.Duration(cfg.CollectionGraceSeconds) * time.Second
}
