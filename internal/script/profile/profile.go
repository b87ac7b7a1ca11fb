// Package profile loads gesture profiles: YAML files that override the
// randomization ranges the human_* commands use.
//
// A profile only needs the keys it changes. Loading starts from the built-in
// defaults and decodes the file over them, so
//
//	name: careful
//	human_click:
//	  delay: {min: 0.4, max: 0.9}
//
// keeps every other range at its default. Profiles live in profiles/ at the
// repository root; the profile name is the filename with the extension
// stripped unless the file sets name explicitly.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/holla2040/droidscript/internal/gesture"
)

// GestureProfile holds the option defaults for each human command.
type GestureProfile struct {
	Name        string                     `yaml:"name" json:"name"`
	Description string                     `yaml:"description,omitempty" json:"description,omitempty"`
	Click       gesture.ClickOptions       `yaml:"human_click" json:"human_click"`
	DoubleClick gesture.DoubleClickOptions `yaml:"human_double_click" json:"human_double_click"`
	LongPress   gesture.LongPressOptions   `yaml:"human_long_press" json:"human_long_press"`
	Drag        gesture.DragOptions        `yaml:"human_drag" json:"human_drag"`
}

// Default returns the built-in profile.
func Default() *GestureProfile {
	return &GestureProfile{
		Name:        "default",
		Click:       gesture.DefaultClickOptions(),
		DoubleClick: gesture.DefaultDoubleClickOptions(),
		LongPress:   gesture.DefaultLongPressOptions(),
		Drag:        gesture.DefaultDragOptions(),
	}
}

// Parse decodes a profile over the defaults.
func Parse(data []byte) (*GestureProfile, error) {
	p := Default()
	p.Name = ""
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfile reads and parses a single YAML profile file.
func LoadProfile(path string) (*GestureProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return p, nil
}

// LoadAllProfiles walks a directory recursively, loads all .yaml files, and
// returns them sorted by name. Non-YAML files are silently skipped.
func LoadAllProfiles(dir string) ([]*GestureProfile, error) {
	var profiles []*GestureProfile

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		p, err := LoadProfile(path)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading profiles from %s: %w", dir, err)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// Find loads the profile called name from dir. An empty name returns the
// default profile.
func Find(dir, name string) (*GestureProfile, error) {
	if name == "" || name == "default" {
		return Default(), nil
	}
	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("gesture profile %q not found in %s", name, dir)
}

// Validate rejects ranges that cannot be sampled and unknown modes.
func (p *GestureProfile) Validate() error {
	ranges := map[string]gesture.Range{
		"human_click.offset":          p.Click.Offset,
		"human_click.delay":           p.Click.Delay,
		"human_click.duration":        p.Click.Duration,
		"human_double_click.offset":   p.DoubleClick.Offset,
		"human_double_click.interval": p.DoubleClick.Interval,
		"human_double_click.duration": p.DoubleClick.Duration,
		"human_long_press.duration":   p.LongPress.Duration,
		"human_long_press.offset":     p.LongPress.Offset,
		"human_long_press.delay":      p.LongPress.Delay,
		"human_drag.offset":           p.Drag.Offset,
		"human_drag.jitter":           p.Drag.Jitter,
		"human_drag.delay":            p.Drag.Delay,
	}
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := ranges[k]
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s: invalid range [%g, %g]", k, r.Min, r.Max)
		}
	}
	if _, ok := gesture.ParseTrajectory(string(p.Drag.Trajectory)); !ok {
		return fmt.Errorf("human_drag.trajectory: unknown trajectory %q", p.Drag.Trajectory)
	}
	if _, ok := gesture.ParseSpeedMode(string(p.Drag.Speed)); !ok {
		return fmt.Errorf("human_drag.speed: unknown speed %q", p.Drag.Speed)
	}
	if p.Drag.Duration <= 0 {
		return fmt.Errorf("human_drag.duration must be positive, got %g", p.Drag.Duration)
	}
	if p.Drag.NumPoints < 1 {
		return fmt.Errorf("human_drag.num_points must be at least 1, got %d", p.Drag.NumPoints)
	}
	return nil
}

// Summary is a compact listing entry for a profile.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Trajectory  string `json:"trajectory"`
	Speed       string `json:"speed"`
}

// Summarize lists profiles in the order given.
func Summarize(profiles []*GestureProfile) []Summary {
	out := make([]Summary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Summary{
			Name:        p.Name,
			Description: p.Description,
			Trajectory:  string(p.Drag.Trajectory),
			Speed:       string(p.Drag.Speed),
		})
	}
	return out
}
