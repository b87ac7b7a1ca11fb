package profile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/holla2040/droidscript/internal/gesture"
)

// repoProfilesDir returns the absolute path to profiles/gestures at the
// repository root, computed from the test file location so tests work
// regardless of working directory.
func repoProfilesDir(t *testing.T) string {
	t.Helper()
	_, testFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to determine test file location via runtime.Caller")
	}
	// profile -> script -> internal -> repo
	repoRoot := filepath.Join(filepath.Dir(testFile), "..", "..", "..")
	dir := filepath.Join(repoRoot, "profiles", "gestures")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("profiles directory not found at %s: %v", dir, err)
	}
	return dir
}

// writeYAML is a helper that writes content to a file inside dir and returns the path.
func writeYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestDefaultMatchesGestureDefaults(t *testing.T) {
	p := Default()
	if p.Click != gesture.DefaultClickOptions() {
		t.Errorf("Click = %+v", p.Click)
	}
	if p.Drag != gesture.DefaultDragOptions() {
		t.Errorf("Drag = %+v", p.Drag)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadProfile_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "slow.yaml", `
human_click:
  delay: {max: 1.5}
human_drag:
  trajectory: linear_jitter
  num_points: 10
`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if p.Name != "slow" {
		t.Errorf("Name = %q, want %q", p.Name, "slow")
	}
	if p.Click.Delay.Min != 0.05 || p.Click.Delay.Max != 1.5 {
		t.Errorf("Click.Delay = %+v, want {0.05 1.5}", p.Click.Delay)
	}
	if p.Click.Offset != gesture.R(3, 10) {
		t.Errorf("Click.Offset = %+v, want default", p.Click.Offset)
	}
	if p.Drag.Trajectory != gesture.LinearJitter {
		t.Errorf("Drag.Trajectory = %q", p.Drag.Trajectory)
	}
	if p.Drag.Speed != gesture.EaseInOut {
		t.Errorf("Drag.Speed = %q, want default", p.Drag.Speed)
	}
	if p.Drag.NumPoints != 10 {
		t.Errorf("Drag.NumPoints = %d", p.Drag.NumPoints)
	}
}

func TestLoadProfile_ExplicitName(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "file.yaml", "name: nice\n")
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if p.Name != "nice" {
		t.Errorf("Name = %q, want nice", p.Name)
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "human_click: [",
		"reversed":     "human_click:\n  offset: {min: 9, max: 2}\n",
		"negative":     "human_drag:\n  jitter: {min: -1, max: 2}\n",
		"trajectory":   "human_drag:\n  trajectory: spiral\n",
		"speed":        "human_drag:\n  speed: warp\n",
		"zero points":  "human_drag:\n  num_points: 0\n",
		"zero seconds": "human_drag:\n  duration: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeYAML(t, dir, "bad.yaml", content)
			if _, err := LoadProfile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadProfile_MissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadAllProfiles_SortedAndSkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "zebra.yaml", "description: z\n")
	writeYAML(t, dir, "alpha.yml", "description: a\n")
	writeYAML(t, dir, "README.md", "# not a profile")

	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		t.Fatalf("LoadAllProfiles() error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Name != "alpha" || profiles[1].Name != "zebra" {
		t.Errorf("order = %q, %q", profiles[0].Name, profiles[1].Name)
	}
}

func TestLoadAllProfiles_NonexistentDir(t *testing.T) {
	_, err := LoadAllProfiles(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFind(t *testing.T) {
	dir := repoProfilesDir(t)

	p, err := Find(dir, "")
	if err != nil || p.Name != "default" {
		t.Fatalf("Find(\"\") = %+v, %v", p, err)
	}

	p, err = Find(dir, "quick")
	if err != nil {
		t.Fatalf("Find(quick) error: %v", err)
	}
	if p.Drag.Trajectory != gesture.LinearJitter {
		t.Errorf("quick trajectory = %q", p.Drag.Trajectory)
	}

	if _, err := Find(dir, "nope"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestActualProfilesAreValid(t *testing.T) {
	profiles, err := LoadAllProfiles(repoProfilesDir(t))
	if err != nil {
		t.Fatalf("LoadAllProfiles() error: %v", err)
	}
	if len(profiles) < 2 {
		t.Fatalf("expected at least 2 shipped profiles, got %d", len(profiles))
	}
	sum := Summarize(profiles)
	if sum[0].Name != "careful" || sum[0].Trajectory != "bezier" {
		t.Errorf("summary[0] = %+v", sum[0])
	}
}
