package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/launch_layer/services/launcher/programs"
)

// ProgramsConfig is the YAML program table overlay.
type ProgramsConfig struct {
	PumpFun     programs.PumpFunConfig   `yaml:"pumpfun"`
	LaunchLab   programs.LaunchLabConfig `yaml:"launchlab"`
	TipAccounts []string                 `yaml:"tip_accounts"`
}

// LoadProgramsConfigFromPath loads the program table overlay from path.
func LoadProgramsConfigFromPath(path string) (*ProgramsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs config: %w", err)
	}

	cfg := DefaultProgramsConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse programs config: %w", err)
	}

	if cfg.PumpFun.SlippageBps > 10_000 {
		return nil, fmt.Errorf("pumpfun: slippage_bps %d exceeds 10000", cfg.PumpFun.SlippageBps)
	}
	if cfg.LaunchLab.Curve.Supply != 0 && cfg.LaunchLab.Curve.TotalBaseSell > cfg.LaunchLab.Curve.Supply {
		return nil, fmt.Errorf("launchlab: total_base_sell exceeds supply")
	}

	return cfg, nil
}

// DefaultProgramsConfig returns an empty overlay. Each program fills its
// built-in defaults for unset fields.
func DefaultProgramsConfig() *ProgramsConfig {
	return &ProgramsConfig{}
}

// Registry builds the program registry from the overlay.
func (c *ProgramsConfig) Registry() (*programs.Registry, error) {
	pump, err := programs.NewPumpFun(c.PumpFun)
	if err != nil {
		return nil, fmt.Errorf("pumpfun: %w", err)
	}
	lab, err := programs.NewLaunchLab(c.LaunchLab)
	if err != nil {
		return nil, fmt.Errorf("launchlab: %w", err)
	}
	return programs.NewRegistry(pump, lab), nil
}
