// Package config holds the plain, YAML-unmarshalable configuration
// struct the CLI harness loads before wiring a capture.
//
// Grounded on awmorgan-OpenCSD's etmv4.Config (a flat struct of
// plain fields, no builder, no validation beyond field defaults) and
// rebound to gopkg.in/yaml.v3 tags instead of the teacher's manual
// field assignment, since this module's config is loaded from a file
// rather than a snapshot's embedded XML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one capture: which logic-analyzer channel index
// carries each of the four ISO 7816-3 signals, and the acceptance
// window the orchestrator uses when validating the measured ETU.
type Config struct {
	IOChannel    int `yaml:"io_channel"`
	ResetChannel int `yaml:"reset_channel"`
	VccChannel   int `yaml:"vcc_channel"`
	ClkChannel   int `yaml:"clk_channel"`

	// MinETU and MaxETU bound the CLK-cycle count measured on the TS
	// start bit; outside this window the capture is rejected as not a
	// genuine ISO 7816-3 session.
	MinETU int `yaml:"min_etu"`
	MaxETU int `yaml:"max_etu"`

	// MaxColdResetCycles is the number of idle CLK cycles the
	// orchestrator waits out after RST goes high before searching for
	// the TS start bit (ISO 7816-3 §6.2.1 mandates at least 400).
	MaxColdResetCycles int `yaml:"max_cold_reset_cycles"`
}

// Default returns the configuration this module uses absent an
// explicit file: channels 0-3 in I/O, RST, Vcc, CLK order, an ETU
// acceptance window of 300 to 450 cycles (both ends excluded), and the
// mandatory 400 idle CLK cycles waited out after RST goes high before
// the TS search begins.
func Default() Config {
	return Config{
		IOChannel:          0,
		ResetChannel:       1,
		VccChannel:         2,
		ClkChannel:         3,
		MinETU:             300,
		MaxETU:             450,
		MaxColdResetCycles: 400,
	}
}

// Load reads and unmarshals a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
