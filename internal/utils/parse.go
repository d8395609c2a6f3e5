package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
)

// ParseRect parses "x,y,width,height".
func ParseRect(s string) (grabcut.Rect, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return grabcut.Rect{}, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return grabcut.Rect{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return grabcut.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// ParsePoints parses a semicolon separated list of "x,y" pairs. An empty
// string yields no points.
func ParsePoints(s string) ([]grabcut.Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pts []grabcut.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("point %q: want x,y", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		pts = append(pts, grabcut.Point{X: x, Y: y})
	}
	return pts, nil
}
