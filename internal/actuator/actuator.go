// Package actuator defines the device capability the script interpreter
// drives: element queries against the UI hierarchy, pointer and key input,
// app lifecycle and the device session. Backends live in subpackages.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by backends that need a device session.
var ErrNotConnected = errors.New("device not connected")

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an element's on-screen bounds.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: (r.Left + r.Right) / 2, Y: (r.Top + r.Bottom) / 2}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// String formats r the way uiautomator writes bounds.
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}

// SelectorKind names how a Selector matches.
type SelectorKind string

const (
	ByID    SelectorKind = "id"
	ByText  SelectorKind = "text"
	ByClass SelectorKind = "class"
	ByXPath SelectorKind = "xpath"
)

// Selector locates UI elements. Parent restricts matches to children of a
// matching element; Sibling requires a matching element under the same
// parent, before or after the match when SiblingRelation says so.
type Selector struct {
	Kind            SelectorKind `json:"kind"`
	Value           string       `json:"value"`
	Parent          *Selector    `json:"parent,omitempty"`
	Sibling         *Selector    `json:"sibling,omitempty"`
	SiblingRelation string       `json:"sibling_relation,omitempty"`
}

func (s Selector) String() string {
	out := fmt.Sprintf("%s:%q", s.Kind, s.Value)
	if s.Parent != nil {
		out += " parent=" + s.Parent.String()
	}
	if s.Sibling != nil {
		out += " sibling=" + s.Sibling.String()
		if s.SiblingRelation != "" {
			out += "(" + s.SiblingRelation + ")"
		}
	}
	return out
}

// Element is a snapshot of one UI node.
type Element struct {
	Text        string `json:"text"`
	ClassName   string `json:"class_name"`
	ResourceID  string `json:"resource_id"`
	ContentDesc string `json:"content_desc,omitempty"`
	Package     string `json:"package,omitempty"`
	Bounds      Rect   `json:"bounds"`
	Enabled     bool   `json:"enabled"`
	Focused     bool   `json:"focused"`
	Selected    bool   `json:"selected"`
	Clickable   bool   `json:"clickable"`
	Checkable   bool   `json:"checkable"`
	Checked     bool   `json:"checked"`
}

// Key is a hardware or system key.
type Key string

const (
	KeyBack   Key = "back"
	KeyHome   Key = "home"
	KeyMenu   Key = "menu"
	KeyRecent Key = "recent"
	KeyWakeup Key = "wakeup"
	KeySleep  Key = "sleep"
)

// DeviceInfo describes a connected device.
type DeviceInfo struct {
	Serial       string `json:"serial"`
	ProductName  string `json:"product_name"`
	APILevel     int    `json:"api_level"`
	BatteryLevel int    `json:"battery_level"`
}

// Status is the live state of the current device session.
type Status struct {
	Serial          string `json:"serial"`
	ProductName     string `json:"product_name"`
	APILevel        int    `json:"api_level"`
	DisplayRotation int    `json:"display_rotation"`
	DisplayWidth    int    `json:"display_width"`
	DisplayHeight   int    `json:"display_height"`
}

// AppInfo identifies the foreground app.
type AppInfo struct {
	Package  string `json:"package"`
	Activity string `json:"activity"`
	PID      int    `json:"pid"`
}

// Actuator is everything the interpreter needs from a device. All calls
// block until the device has acted; none are issued concurrently within one
// script run.
type Actuator interface {
	// Selector queries.
	Exists(ctx context.Context, sel Selector) (bool, error)
	Element(ctx context.Context, sel Selector) (*Element, error) // nil, nil when absent
	Elements(ctx context.Context, sel Selector) ([]Element, error)
	WaitExists(ctx context.Context, sel Selector, timeout time.Duration) (bool, error)
	WaitGone(ctx context.Context, sel Selector, timeout time.Duration) (bool, error)

	// Pointer input.
	Click(ctx context.Context, p Point) error
	LongClick(ctx context.Context, p Point, hold time.Duration) error
	Swipe(ctx context.Context, from, to Point, dur time.Duration) error
	SwipePath(ctx context.Context, points []Point, perSegment time.Duration) error

	// Keys and screen.
	SendKeys(ctx context.Context, text string) error
	ClearText(ctx context.Context) error
	PressKey(ctx context.Context, key Key) error
	Unlock(ctx context.Context) error
	WindowSize(ctx context.Context) (width, height int, err error)

	// Introspection.
	DumpHierarchy(ctx context.Context) (string, error)
	Shell(ctx context.Context, cmd string) (string, error)

	// App lifecycle.
	StartApp(ctx context.Context, pkg string) error
	StopApp(ctx context.Context, pkg string) error
	ClearApp(ctx context.Context, pkg string) error
	AppVersion(ctx context.Context, pkg string) (string, error) // "" when not installed
	CurrentApp(ctx context.Context) (AppInfo, error)

	// Device session.
	Connect(ctx context.Context, serial string) (DeviceInfo, error)
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (*Status, error) // nil, nil when disconnected
}
