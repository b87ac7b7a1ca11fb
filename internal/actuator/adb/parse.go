package adb

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/holla2040/droidscript/internal/actuator"
)

var (
	sizePattern     = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)
	focusPattern    = regexp.MustCompile(`mCurrentFocus=Window\{[^}]*\s([\w.]+)/([\w.$]+)\}`)
	batteryPattern  = regexp.MustCompile(`(?m)^\s*level:\s*(\d+)`)
	rotationPattern = regexp.MustCompile(`SurfaceOrientation:\s*(\d)`)
)

// ParseWindowSize reads `wm size` output. An override size wins over the
// physical one.
func ParseWindowSize(out string) (int, int, error) {
	var w, h int
	found := false
	for _, m := range sizePattern.FindAllStringSubmatch(out, -1) {
		if found && m[1] != "Override" {
			continue
		}
		w, _ = strconv.Atoi(m[2])
		h, _ = strconv.Atoi(m[3])
		found = true
	}
	if !found {
		return 0, 0, fmt.Errorf("unrecognised wm size output %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

// ParseVersionName returns the first versionName in `dumpsys package`
// output, or "" when the package is not installed.
func ParseVersionName(out string) string {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "versionName="); ok {
			return v
		}
	}
	return ""
}

// ParseCurrentFocus extracts the focused package and activity from
// `dumpsys window`.
func ParseCurrentFocus(out string) actuator.AppInfo {
	m := focusPattern.FindStringSubmatch(out)
	if m == nil {
		return actuator.AppInfo{}
	}
	return actuator.AppInfo{Package: m[1], Activity: m[2]}
}

// ParseDevices lists the serials `adb devices` reports as ready.
func ParseDevices(out string) []string {
	var serials []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

// ParseBatteryLevel reads the level line of `dumpsys battery`.
func ParseBatteryLevel(out string) int {
	m := batteryPattern.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseRotation reads SurfaceOrientation from `dumpsys input`.
func ParseRotation(out string) int {
	m := rotationPattern.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// EscapeText prepares text for `input text`: spaces become %s and shell
// metacharacters are backslash-escaped.
func EscapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteString("%s")
		case strings.ContainsRune(`\'"()<>|;&*~$!?#`+"`", r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
