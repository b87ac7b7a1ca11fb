package executor

import (
	"fmt"
	"strings"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/variable"
)

// ---------------------------------------------------------------------------
// Selector resolution
// ---------------------------------------------------------------------------

var selectorKinds = map[ast.SelectorKind]actuator.SelectorKind{
	ast.SelectorID:    actuator.ByID,
	ast.SelectorText:  actuator.ByText,
	ast.SelectorClass: actuator.ByClass,
	ast.SelectorXPath: actuator.ByXPath,
}

// expandString resolves and interpolates v and returns it as a string.
func (e *Executor) expandString(v interface{}) string {
	return variable.ToString(e.env.Expand(v))
}

// selector builds the element selector of a command, with parent and
// sibling modifiers applied. It returns nil when the command has no named
// selector or its value is empty.
func (e *Executor) selector(inv *invocation) *actuator.Selector {
	s := inv.stmt.Selector
	if s == nil {
		return nil
	}
	kind, ok := selectorKinds[s.Kind]
	if !ok {
		return nil
	}
	value := e.expandString(s.Value)
	if value == "" {
		return nil
	}
	sel := &actuator.Selector{Kind: kind, Value: value}
	mods := inv.stmt.Modifiers
	sel.Parent = e.modifierSelector(mods, "parent")
	sel.Sibling = e.modifierSelector(mods, "sibling")
	if sel.Sibling != nil {
		if rel, ok := mods["sibling_relation"]; ok {
			sel.SiblingRelation = strings.ToLower(e.expandString(rel))
		}
	}
	return sel
}

// modifierSelector reads prefix_type/prefix_value, prefix_id, prefix_text,
// prefix_class or a bare prefix (matched as text).
func (e *Executor) modifierSelector(mods map[string]interface{}, prefix string) *actuator.Selector {
	if len(mods) == 0 {
		return nil
	}
	if t, ok := mods[prefix+"_type"]; ok {
		if kind, ok := selectorKinds[ast.SelectorKind(variable.ToString(t))]; ok {
			return nonEmpty(kind, e.expandString(mods[prefix+"_value"]))
		}
	}
	for _, k := range []ast.SelectorKind{ast.SelectorID, ast.SelectorText, ast.SelectorClass} {
		if v, ok := mods[prefix+"_"+string(k)]; ok {
			return nonEmpty(selectorKinds[k], e.expandString(v))
		}
	}
	if v, ok := mods[prefix]; ok {
		return nonEmpty(actuator.ByText, e.expandString(v))
	}
	return nil
}

func nonEmpty(kind actuator.SelectorKind, value string) *actuator.Selector {
	if value == "" {
		return nil
	}
	return &actuator.Selector{Kind: kind, Value: value}
}

// element looks up the command's selector. A missing selector or element
// yields nil without error.
func (e *Executor) element(inv *invocation) (*actuator.Element, error) {
	sel := e.selector(inv)
	if sel == nil {
		return nil, nil
	}
	return e.act.Element(e.ctx, *sel)
}

// coordSelector parses a `coord: "x,y"` selector.
func (e *Executor) coordSelector(inv *invocation) (actuator.Point, bool, error) {
	s := inv.stmt.Selector
	if s == nil || s.Kind != ast.SelectorCoord {
		return actuator.Point{}, false, nil
	}
	raw := e.expandString(s.Value)
	xs, ys, found := strings.Cut(raw, ",")
	if !found {
		return actuator.Point{}, false, fmt.Errorf("invalid coordinate %q", raw)
	}
	x, err := variable.ToInt(strings.TrimSpace(xs))
	if err != nil {
		return actuator.Point{}, false, fmt.Errorf("invalid coordinate %q: %w", raw, err)
	}
	y, err := variable.ToInt(strings.TrimSpace(ys))
	if err != nil {
		return actuator.Point{}, false, fmt.Errorf("invalid coordinate %q: %w", raw, err)
	}
	return actuator.Point{X: int(x), Y: int(y)}, true, nil
}

// target resolves the point a pointer command acts on: literal coordinates
// first (a coord selector or two leading numeric args), then the center of
// the selected element shifted by the offset modifiers. found is false when
// nothing resolves.
func (e *Executor) target(inv *invocation) (pt actuator.Point, found bool, err error) {
	if pt, ok, err := e.coordSelector(inv); ok || err != nil {
		return pt, ok, err
	}
	if e.selector(inv) == nil && len(inv.args) >= 2 {
		x, err := variable.ToInt(inv.args[0])
		if err != nil {
			return pt, false, fmt.Errorf("invalid x coordinate: %w", err)
		}
		y, err := variable.ToInt(inv.args[1])
		if err != nil {
			return pt, false, fmt.Errorf("invalid y coordinate: %w", err)
		}
		return actuator.Point{X: int(x), Y: int(y)}, true, nil
	}

	el, err := e.element(inv)
	if err != nil || el == nil {
		return pt, false, err
	}
	pt = el.Bounds.Center()
	dx, dy, err := e.offsets(inv.stmt.Modifiers)
	if err != nil {
		return pt, false, err
	}
	pt.X += dx
	pt.Y += dy
	return pt, true, nil
}

// offsets sums the offset, offset_x and offset_y modifiers.
func (e *Executor) offsets(mods map[string]interface{}) (dx, dy int, err error) {
	get := func(name string) (int, error) {
		v, ok := mods[name]
		if !ok {
			return 0, nil
		}
		n, err := variable.ToInt(e.env.Expand(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return int(n), nil
	}
	both, err := get("offset")
	if err != nil {
		return 0, 0, err
	}
	x, err := get("offset_x")
	if err != nil {
		return 0, 0, err
	}
	y, err := get("offset_y")
	if err != nil {
		return 0, 0, err
	}
	return both + x, both + y, nil
}

// ---------------------------------------------------------------------------
// Element maps
// ---------------------------------------------------------------------------

func boundsMap(r actuator.Rect) map[string]interface{} {
	return map[string]interface{}{
		"left":   int64(r.Left),
		"top":    int64(r.Top),
		"right":  int64(r.Right),
		"bottom": int64(r.Bottom),
	}
}

// elementInfo is the get_info shape; withCheck adds checkable and checked.
func elementInfo(el *actuator.Element, withCheck bool) map[string]interface{} {
	if el == nil {
		return map[string]interface{}{"exists": false}
	}
	m := map[string]interface{}{
		"exists":      true,
		"text":        el.Text,
		"class_name":  el.ClassName,
		"resource_id": el.ResourceID,
		"bounds":      boundsMap(el.Bounds),
		"enabled":     el.Enabled,
		"focused":     el.Focused,
		"selected":    el.Selected,
		"clickable":   el.Clickable,
	}
	if withCheck {
		m["checkable"] = el.Checkable
		m["checked"] = el.Checked
	}
	return m
}

// elementSummary is one entry of find_elements.
func elementSummary(el actuator.Element) map[string]interface{} {
	return map[string]interface{}{
		"text":        el.Text,
		"class_name":  el.ClassName,
		"resource_id": el.ResourceID,
		"bounds":      boundsMap(el.Bounds),
		"enabled":     el.Enabled,
	}
}
