package device

import (
	"fmt"
	"strings"
)

// Direction of a swipe gesture.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Distance of a swipe gesture, as a fraction of the window dimension.
type Distance string

const (
	DistanceShort  Distance = "short"
	DistanceMedium Distance = "medium"
	DistanceLong   Distance = "long"
)

var distanceFactor = map[Distance]float64{
	DistanceShort:  0.3,
	DistanceMedium: 0.5,
	DistanceLong:   0.7,
}

// ParseDirection normalizes a direction name.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, nil
	}
	return "", fmt.Errorf("unknown swipe direction %q", s)
}

// ParseDistance normalizes a distance name. Empty means medium.
func ParseDistance(s string) (Distance, error) {
	d := Distance(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DistanceMedium, nil
	}
	if _, ok := distanceFactor[d]; !ok {
		return "", fmt.Errorf("unknown swipe distance %q", s)
	}
	return d, nil
}

// SwipeEnd computes where a swipe starting at from ends inside a window of the given size.
// The end point is clamped to the window.
func SwipeEnd(from Point, dir Direction, dist Distance, size Size) Point {
	f, ok := distanceFactor[dist]
	if !ok {
		f = distanceFactor[DistanceMedium]
	}
	dx := int(float64(size.Width) * f)
	dy := int(float64(size.Height) * f)

	to := from
	switch dir {
	case DirectionUp:
		to.Y -= dy
	case DirectionDown:
		to.Y += dy
	case DirectionLeft:
		to.X -= dx
	case DirectionRight:
		to.X += dx
	}
	return clamp(to, size)
}

// BackGesture is the left-edge drag that navigates back: from x=0 at
// mid-height to a third of the width.
func BackGesture(size Size) (from, to Point) {
	mid := size.Height / 2
	return Point{X: 0, Y: mid}, Point{X: size.Width / 3, Y: mid}
}

func clamp(p Point, size Size) Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if size.Width > 0 && p.X > size.Width-1 {
		p.X = size.Width - 1
	}
	if size.Height > 0 && p.Y > size.Height-1 {
		p.Y = size.Height - 1
	}
	return p
}
