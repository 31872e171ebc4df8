package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-voxelcube/internal/ingest"
	"github.com/coreman2200/funtimes-voxelcube/internal/pattern"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/sequence"
	"github.com/coreman2200/funtimes-voxelcube/internal/uart"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

// MinRefreshHz is the whole-cube rate below which the cube visibly flickers.
const MinRefreshHz = 50

type Serial struct {
	uart.PortOptions `yaml:",inline"`

	Path     string `yaml:"path"` // e.g. /dev/ttyUSB0; empty disables
	Echo     bool   `yaml:"echo"`
	Announce bool   `yaml:"announce"`
}

type Ring struct {
	RX int `yaml:"rx"`
	TX int `yaml:"tx"`
}

type Refresh struct {
	LayerRate string `yaml:"layer_rate"` // e.g. "1kHz"
	SettleUs  int    `yaml:"settle_us"`
}

type Pins struct {
	X []string `yaml:"x"`
	Y []string `yaml:"y"`
	Z []string `yaml:"z"`
}

type Idle struct {
	Enabled bool             `yaml:"enabled"`
	StepMs  int              `yaml:"step_ms"`
	Program sequence.Program `yaml:"program"`
}

type Config struct {
	Driver   string `yaml:"driver"` // "gpio" | "sim"
	LogLevel string `yaml:"log_level"`
	HTTP     string `yaml:"http"`    // listen address; empty disables
	Console  bool   `yaml:"console"` // terminal preview in sim mode

	Serial   Serial         `yaml:"serial"`
	Ring     Ring           `yaml:"ring"`
	Refresh  Refresh        `yaml:"refresh"`
	Pins     Pins           `yaml:"pins"`
	Wiring   port.Wiring    `yaml:"wiring"`
	Protocol ingest.Options `yaml:"protocol"`
	Idle     Idle           `yaml:"idle"`
}

func gpioRange(from int) []string {
	out := make([]string, voxel.Size)
	for i := range out {
		out[i] = fmt.Sprintf("GPIO%d", from+i)
	}
	return out
}

// Default is used for anything a config file leaves out.
func Default() *Config {
	return &Config{
		Driver:   "sim",
		LogLevel: "info",
		HTTP:     ":8080",
		Serial: Serial{
			PortOptions: uart.PortOptions{BaudRate: uart.DefaultBaud, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		Ring:    Ring{RX: 128, TX: 32},
		Refresh: Refresh{LayerRate: "1kHz", SettleUs: 50},
		Pins:    Pins{X: gpioRange(2), Y: gpioRange(10), Z: gpioRange(18)},
		Wiring:  port.DefaultWiring(),
		Idle: Idle{
			Enabled: true,
			StepMs:  120,
			Program: sequence.Program{
				Loop: true,
				Clips: []sequence.Clip{
					{Pattern: string(pattern.PlaneZ), DurationS: 4},
					{Pattern: string(pattern.BoxGrow), DurationS: 4},
					{Pattern: string(pattern.Diagonal), DurationS: 4},
					{Pattern: string(pattern.Rain), DurationS: 10},
				},
			},
		},
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// LayerRate parses Refresh.LayerRate.
func (c *Config) LayerRate() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(c.Refresh.LayerRate); err != nil {
		return 0, fmt.Errorf("config: refresh.layer_rate %q: %w", c.Refresh.LayerRate, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("config: refresh.layer_rate must be positive")
	}
	return f, nil
}

// RefreshHz is how often the whole cube is redrawn.
func (c *Config) RefreshHz() float64 {
	f, err := c.LayerRate()
	if err != nil {
		return 0
	}
	return float64(f) / float64(physic.Hertz) / voxel.Size
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.Refresh.SettleUs) * time.Microsecond
}

func (c *Config) IdleStep() time.Duration {
	return time.Duration(c.Idle.StepMs) * time.Millisecond
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Driver {
	case "gpio":
		for name, pins := range map[string][]string{"x": c.Pins.X, "y": c.Pins.Y, "z": c.Pins.Z} {
			if len(pins) != voxel.Size {
				return fmt.Errorf("config: pins.%s needs %d names, got %d", name, voxel.Size, len(pins))
			}
		}
	case "sim":
	default:
		return fmt.Errorf("config: unknown driver %q (want gpio or sim)", c.Driver)
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return fmt.Errorf("config: serial: %w", err)
	}
	rate, err := c.LayerRate()
	if err != nil {
		return err
	}
	if c.Refresh.SettleUs < 0 {
		return fmt.Errorf("config: refresh.settle_us must not be negative")
	}
	if hold := c.Settle() * voxel.Size; hold >= rate.Period() {
		return fmt.Errorf("config: %s of row holds does not fit a %s layer period", hold, rate.Period())
	}
	if c.Protocol.FrameTimeout < 0 {
		return fmt.Errorf("config: protocol.frame_timeout must not be negative")
	}
	for _, clip := range c.Idle.Program.Clips {
		if _, err := pattern.Parse(clip.Pattern); err != nil {
			return fmt.Errorf("config: idle.program: %w", err)
		}
	}
	return nil
}
