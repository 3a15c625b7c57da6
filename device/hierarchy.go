package device

import (
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// mergeRadius is the centre distance under which two elements count as one.
const mergeRadius = 5.0

var interactiveTypes = []string{
	"XCUIElementTypeButton",
	"XCUIElementTypeCell",
	"XCUIElementTypeTextField",
	"XCUIElementTypeSecureTextField",
	"XCUIElementTypeSearchField",
	"XCUIElementTypeSlider",
	"XCUIElementTypeSwitch",
	"XCUIElementTypeTab",
	"XCUIElementTypeLink",
	"XCUIElementTypeImage",
	"XCUIElementTypeIcon",
	"XCUIElementTypeStaticText",
}

// Rect is an axis-aligned box in logical points.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the integer centre of the box.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Element is one interactive node of the UI tree. Index is 1-based and is
// the number the model refers to in tap(i) and friends.
type Element struct {
	Index      int    `json:"index"`
	UID        string `json:"uid"`
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`
	Label      string `json:"label,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Bounds     Rect   `json:"bounds"`
}

// Center is where gestures on the element land.
func (e Element) Center() Point {
	return e.Bounds.Center()
}

// Describe renders the element the way the prompt lists it.
func (e Element) Describe() string {
	kind := strings.TrimPrefix(e.Type, "XCUIElementType")
	text := e.Label
	if text == "" {
		text = e.Name
	}
	if text == "" {
		text = e.Identifier
	}
	if text == "" {
		return fmt.Sprintf("[%d] %s", e.Index, kind)
	}
	return fmt.Sprintf("[%d] %s %q", e.Index, kind, text)
}

type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
}

func (n *node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// typeName prefers the element tag and falls back to the type attribute.
func (n *node) typeName() string {
	if strings.HasPrefix(n.XMLName.Local, "XCUIElementType") {
		return n.XMLName.Local
	}
	if t := n.attr("type"); t != "" {
		return t
	}
	return n.XMLName.Local
}

// ParseElements extracts the interactive elements of an XCUI page source in
// document order. Elements whose centres fall within a few points of an
// already collected element are dropped.
func ParseElements(source string) ([]Element, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	var root node
	if err := xml.Unmarshal([]byte(source), &root); err != nil {
		return nil, fmt.Errorf("parse page source: %w", err)
	}

	var elems []Element
	var walk func(n *node, parent *node)
	walk = func(n *node, parent *node) {
		if bounds, ok := interactiveBounds(n); ok && !tooClose(elems, bounds.Center()) {
			uid := elementID(n)
			if parent != nil {
				uid = elementID(parent) + "_" + uid
			}
			elems = append(elems, Element{
				Index:      len(elems) + 1,
				UID:        uid,
				Type:       n.typeName(),
				Name:       n.attr("name"),
				Label:      n.attr("label"),
				Identifier: n.attr("identifier"),
				Bounds:     bounds,
			})
		}
		for i := range n.Children {
			walk(&n.Children[i], n)
		}
	}
	walk(&root, nil)

	return elems, nil
}

func interactiveBounds(n *node) (Rect, bool) {
	if !slices.Contains(interactiveTypes, n.typeName()) {
		return Rect{}, false
	}
	if n.attr("enabled") == "false" || n.attr("visible") == "false" {
		return Rect{}, false
	}

	r, ok := elementBounds(n)
	if !ok || r.Width <= 0 || r.Height <= 0 {
		return Rect{}, false
	}
	return r, true
}

func elementBounds(n *node) (Rect, bool) {
	if b := n.attr("bounds"); b != "" {
		if r, ok := ParseBounds(b); ok {
			return r, true
		}
	}
	x, y, w, h := n.attr("x"), n.attr("y"), n.attr("width"), n.attr("height")
	if x == "" || y == "" || w == "" || h == "" {
		return Rect{}, false
	}
	return rectFromStrings([]string{x, y, w, h})
}

// ParseBounds reads "{{x, y}, {w, h}}" or "x,y,w,h".
func ParseBounds(s string) (Rect, bool) {
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	parts := strings.Split(s, ",")
	if len(parts) < 4 {
		return Rect{}, false
	}
	return rectFromStrings(parts[:4])
}

func rectFromStrings(parts []string) (Rect, bool) {
	var v [4]int
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, false
		}
		v[i] = int(f)
	}
	return Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
}

func tooClose(elems []Element, c Point) bool {
	for _, e := range elems {
		ec := e.Center()
		if math.Hypot(float64(c.X-ec.X), float64(c.Y-ec.Y)) <= mergeRadius {
			return true
		}
	}
	return false
}

func elementID(n *node) string {
	typ := n.typeName()
	id := n.attr("name")
	if id == "" {
		id = n.attr("identifier")
	}
	if id == "" {
		id = n.attr("label")
	}
	if id != "" {
		return typ + "_" + strings.NewReplacer(" ", "_", ":", "_").Replace(id)
	}
	r, _ := elementBounds(n)
	return fmt.Sprintf("%s_%d_%d", typ, r.Width, r.Height)
}

// ElementAt returns the element with the given 1-based index.
func ElementAt(elems []Element, index int) (Element, error) {
	if index < 1 || index > len(elems) {
		return Element{}, fmt.Errorf("element index %d out of range (have %d)", index, len(elems))
	}
	return elems[index-1], nil
}

// DescribeElements renders the element list, one per line.
func DescribeElements(elems []Element) string {
	var sb strings.Builder
	for _, e := range elems {
		sb.WriteString(e.Describe())
		sb.WriteByte('\n')
	}
	return sb.String()
}
