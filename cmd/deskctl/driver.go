package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/deskctl/internal/bletransport"
	"github.com/srg/deskctl/internal/desk"
	"github.com/srg/deskctl/pkg/config"
)

// loadConfig resolves the effective configuration: defaults, then the
// config file (explicit --config, or ~/.deskctl.yaml when present), then
// flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config

	path, _ := cmd.Flags().GetString("config")
	switch {
	case path != "":
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		if defaultPath := defaultConfigPath(); defaultPath != "" {
			if _, err := os.Stat(defaultPath); err == nil {
				loaded, err := config.Load(defaultPath)
				if err != nil {
					return nil, err
				}
				cfg = loaded
			}
		}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		cfg.Address = addr
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("desk address required: pass --address or set it in the config file")
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deskctl.yaml")
}

// openDriver builds and connects a driver per the resolved configuration.
// The caller must Close it.
func openDriver(ctx context.Context, cmd *cobra.Command, logger *logrus.Logger) (*desk.Driver, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	transport := bletransport.New(logger)
	d := desk.NewDriver(transport, cfg.DriverOptions(logger))
	if err := d.Connect(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// waitIdle polls the move state until the controller settles or the timeout
// elapses.
func waitIdle(ctx context.Context, d *desk.Driver, timeout time.Duration) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			if d.MoveState() == desk.Idle {
				return
			}
		}
	}
}
