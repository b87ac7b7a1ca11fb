package actuator

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
)

// Hierarchy is a parsed uiautomator window dump. Every <node> is retagged
// with its class attribute so XPath selectors such as
// //android.widget.Button[@text='OK'] work directly.
type Hierarchy struct {
	doc   *etree.Document
	nodes []*etree.Element // document order
}

// ParseHierarchy parses the XML produced by `uiautomator dump`.
func ParseHierarchy(xml string) (*Hierarchy, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse hierarchy: empty document")
	}
	h := &Hierarchy{doc: doc}
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if cls := child.SelectAttrValue("class", ""); cls != "" {
				child.Tag = cls
			}
			h.nodes = append(h.nodes, child)
			walk(child)
		}
	}
	walk(root)
	return h, nil
}

// Len returns the number of UI nodes.
func (h *Hierarchy) Len() int {
	return len(h.nodes)
}

// Find returns every element matching sel in document order.
func (h *Hierarchy) Find(sel Selector) ([]Element, error) {
	matches, err := h.match(sel)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(matches))
	for _, el := range matches {
		out = append(out, toElement(el))
	}
	return out, nil
}

// First returns the first match, or nil when nothing matches.
func (h *Hierarchy) First(sel Selector) (*Element, error) {
	matches, err := h.match(sel)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	el := toElement(matches[0])
	return &el, nil
}

func (h *Hierarchy) match(sel Selector) ([]*etree.Element, error) {
	if sel.Value == "" {
		return nil, nil
	}
	candidates, err := h.base(sel)
	if err != nil {
		return nil, err
	}
	if sel.Parent == nil && sel.Sibling == nil {
		return candidates, nil
	}

	var parents, siblings map[*etree.Element]bool
	if sel.Parent != nil {
		if parents, err = h.set(*sel.Parent); err != nil {
			return nil, err
		}
	}
	if sel.Sibling != nil {
		if siblings, err = h.set(*sel.Sibling); err != nil {
			return nil, err
		}
	}

	var out []*etree.Element
	for _, el := range candidates {
		if parents != nil && !parents[el.Parent()] {
			continue
		}
		if siblings != nil && !hasSibling(el, siblings, sel.SiblingRelation) {
			continue
		}
		out = append(out, el)
	}
	return out, nil
}

// base applies the selector's own kind and value.
func (h *Hierarchy) base(sel Selector) ([]*etree.Element, error) {
	if sel.Kind == ByXPath {
		path, err := etree.CompilePath(sel.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", sel.Value, err)
		}
		var out []*etree.Element
		for _, el := range h.doc.FindElementsPath(path) {
			if el != h.doc.Root() {
				out = append(out, el)
			}
		}
		return out, nil
	}

	attr, err := attrFor(sel.Kind)
	if err != nil {
		return nil, err
	}
	var out []*etree.Element
	for _, el := range h.nodes {
		if el.SelectAttrValue(attr, "") == sel.Value {
			out = append(out, el)
		}
	}
	return out, nil
}

func (h *Hierarchy) set(sel Selector) (map[*etree.Element]bool, error) {
	matches, err := h.match(sel)
	if err != nil {
		return nil, err
	}
	out := make(map[*etree.Element]bool, len(matches))
	for _, el := range matches {
		out[el] = true
	}
	return out, nil
}

// hasSibling reports whether el shares a parent with a member of siblings.
// relation "before" wants the sibling ahead of el, "after" behind it.
func hasSibling(el *etree.Element, siblings map[*etree.Element]bool, relation string) bool {
	parent := el.Parent()
	if parent == nil {
		return false
	}
	seenSelf := false
	for _, child := range parent.ChildElements() {
		if child == el {
			seenSelf = true
			continue
		}
		if !siblings[child] {
			continue
		}
		switch relation {
		case "before":
			if !seenSelf {
				return true
			}
		case "after":
			if seenSelf {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func attrFor(kind SelectorKind) (string, error) {
	switch kind {
	case ByID:
		return "resource-id", nil
	case ByText:
		return "text", nil
	case ByClass:
		return "class", nil
	}
	return "", fmt.Errorf("unsupported selector kind %q", kind)
}

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds parses uiautomator bounds of the form "[l,t][r,b]".
func ParseBounds(s string) (Rect, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return Rect{}, fmt.Errorf("invalid bounds %q", s)
	}
	var v [4]int
	for i := range v {
		v[i], _ = strconv.Atoi(m[i+1])
	}
	return Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

func toElement(el *etree.Element) Element {
	b, _ := ParseBounds(el.SelectAttrValue("bounds", ""))
	flag := func(name string) bool { return el.SelectAttrValue(name, "false") == "true" }
	return Element{
		Text:        el.SelectAttrValue("text", ""),
		ClassName:   el.SelectAttrValue("class", ""),
		ResourceID:  el.SelectAttrValue("resource-id", ""),
		ContentDesc: el.SelectAttrValue("content-desc", ""),
		Package:     el.SelectAttrValue("package", ""),
		Bounds:      b,
		Enabled:     flag("enabled"),
		Focused:     flag("focused"),
		Selected:    flag("selected"),
		Clickable:   flag("clickable"),
		Checkable:   flag("checkable"),
		Checked:     flag("checked"),
	}
}
