package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Timings are the resolved delays used by table sessions and tournaments.
type Timings struct {
	TurnTimeout     time.Duration
	BotDelayMin     time.Duration
	BotDelayMax     time.Duration
	DisconnectGrace time.Duration
	RunoutDelay     time.Duration
	NextHandDelay   time.Duration
	SitAndGoDelay   time.Duration
	PendingCheck    time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		TurnTimeout:     30 * time.Second,
		BotDelayMin:     time.Second,
		BotDelayMax:     3 * time.Second,
		DisconnectGrace: 5 * time.Second,
		RunoutDelay:     time.Second,
		NextHandDelay:   5 * time.Second,
		SitAndGoDelay:   10 * time.Second,
		PendingCheck:    10 * time.Second,
	}
}

// Resolve parses the duration strings.
func (t *TimingSettings) Resolve() (Timings, error) {
	var out Timings
	fields := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"turn_timeout", t.TurnTimeout, &out.TurnTimeout},
		{"bot_delay_min", t.BotDelayMin, &out.BotDelayMin},
		{"bot_delay_max", t.BotDelayMax, &out.BotDelayMax},
		{"disconnect_grace", t.DisconnectGrace, &out.DisconnectGrace},
		{"runout_delay", t.RunoutDelay, &out.RunoutDelay},
		{"next_hand_delay", t.NextHandDelay, &out.NextHandDelay},
		{"sit_and_go_delay", t.SitAndGoDelay, &out.SitAndGoDelay},
		{"pending_check", t.PendingCheck, &out.PendingCheck},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return Timings{}, fmt.Errorf("timing %s: %w", f.name, err)
		}
		if d < 0 {
			return Timings{}, fmt.Errorf("timing %s: negative duration", f.name)
		}
		*f.dst = d
	}
	if out.TurnTimeout == 0 {
		return Timings{}, fmt.Errorf("timing turn_timeout must be positive")
	}
	if out.BotDelayMax < out.BotDelayMin {
		return Timings{}, fmt.Errorf("timing bot_delay_max below bot_delay_min")
	}
	if out.PendingCheck == 0 {
		return Timings{}, fmt.Errorf("timing pending_check must be positive")
	}
	return out, nil
}

// TimingOverrides is the YAML overrides file. Values are milliseconds; zero
// leaves the HCL value alone.
type TimingOverrides struct {
	TurnTimeout     uint32 `yaml:"turnTimeout"`
	BotDelayMin     uint32 `yaml:"botDelayMin"`
	BotDelayMax     uint32 `yaml:"botDelayMax"`
	DisconnectGrace uint32 `yaml:"disconnectGrace"`
	RunoutDelay     uint32 `yaml:"runoutDelay"`
	NextHandDelay   uint32 `yaml:"nextHandDelay"`
	SitAndGoDelay   uint32 `yaml:"sitAndGoDelay"`
	PendingCheck    uint32 `yaml:"pendingCheck"`
}

// LoadTimingOverrides reads a YAML overrides file.
func LoadTimingOverrides(filename string) (TimingOverrides, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return TimingOverrides{}, errors.Wrapf(err, "reading timing overrides [%s]", filename)
	}
	var o TimingOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return TimingOverrides{}, errors.Wrapf(err, "parsing timing overrides [%s]", filename)
	}
	return o, nil
}

func (t *TimingSettings) apply(o TimingOverrides) {
	set := func(dst *string, ms uint32) {
		if ms > 0 {
			*dst = (time.Duration(ms) * time.Millisecond).String()
		}
	}
	set(&t.TurnTimeout, o.TurnTimeout)
	set(&t.BotDelayMin, o.BotDelayMin)
	set(&t.BotDelayMax, o.BotDelayMax)
	set(&t.DisconnectGrace, o.DisconnectGrace)
	set(&t.RunoutDelay, o.RunoutDelay)
	set(&t.NextHandDelay, o.NextHandDelay)
	set(&t.SitAndGoDelay, o.SitAndGoDelay)
	set(&t.PendingCheck, o.PendingCheck)
}
