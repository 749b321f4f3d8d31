// Package particles models the particle emitter's rendering configuration and
// the sticky-state merge applied to it by inbound gesture inference.
package particles

import (
	"fmt"
	"math"
	"strings"
)

// Shape is the emitter's target formation.
type Shape string

const (
	ShapeSphere   Shape = "sphere"
	ShapeHeart    Shape = "heart"
	ShapeHelix    Shape = "helix"
	ShapeFirework Shape = "firework"
	ShapeGalaxy   Shape = "galaxy"
	ShapeFlower   Shape = "flower"
)

// Shapes returns every known shape in declaration order.
func Shapes() []Shape {
	return []Shape{ShapeSphere, ShapeHeart, ShapeHelix, ShapeFirework, ShapeGalaxy, ShapeFlower}
}

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	for _, known := range Shapes() {
		if s == known {
			return true
		}
	}
	return false
}

// Palette is the emitter's color scheme.
type Palette string

const (
	PaletteCosmic  Palette = "cosmic"
	PaletteFire    Palette = "fire"
	PaletteOcean   Palette = "ocean"
	PaletteForest  Palette = "forest"
	PaletteNeon    Palette = "neon"
	PaletteRainbow Palette = "rainbow"
)

// Palettes returns every known palette in declaration order.
func Palettes() []Palette {
	return []Palette{PaletteCosmic, PaletteFire, PaletteOcean, PaletteForest, PaletteNeon, PaletteRainbow}
}

// Valid reports whether p is a known palette.
func (p Palette) Valid() bool {
	for _, known := range Palettes() {
		if p == known {
			return true
		}
	}
	return false
}

// Numeric bounds applied at merge time.
const (
	MinExpansion     = 0.1
	MaxExpansion     = 3.0
	MinSpeed         = 0.0
	MaxSpeed         = 5.0
	MinRotationSpeed = -5.0
	MaxRotationSpeed = 5.0
)

// State is the emitter's current rendering configuration.
type State struct {
	Shape         Shape   `json:"shape"`
	Expansion     float64 `json:"expansion"`
	ColorPalette  Palette `json:"color_palette"`
	Speed         float64 `json:"speed"`
	RotationSpeed float64 `json:"rotation_speed"`
}

// DefaultState returns the configuration the emitter starts with.
func DefaultState() State {
	return State{
		Shape:         ShapeSphere,
		Expansion:     1.0,
		ColorPalette:  PaletteCosmic,
		Speed:         1.0,
		RotationSpeed: 0.5,
	}
}

// Update is a sparse set of fields to overwrite. Nil fields are left alone.
type Update struct {
	Shape         *Shape   `json:"shape,omitempty"`
	Expansion     *float64 `json:"expansion,omitempty"`
	ColorPalette  *Palette `json:"color_palette,omitempty"`
	Speed         *float64 `json:"speed,omitempty"`
	RotationSpeed *float64 `json:"rotation_speed,omitempty"`
}

// IsEmpty reports whether u carries no fields.
func (u Update) IsEmpty() bool {
	return u.Shape == nil && u.Expansion == nil && u.ColorPalette == nil &&
		u.Speed == nil && u.RotationSpeed == nil
}

// Fields returns the names of the fields present in u.
func (u Update) Fields() []string {
	var names []string
	if u.Shape != nil {
		names = append(names, "shape")
	}
	if u.Expansion != nil {
		names = append(names, "expansion")
	}
	if u.ColorPalette != nil {
		names = append(names, "color_palette")
	}
	if u.Speed != nil {
		names = append(names, "speed")
	}
	if u.RotationSpeed != nil {
		names = append(names, "rotation_speed")
	}
	return names
}

// Merge returns s with every field present in u overwritten.
// Numeric fields are clamped to their bounds.
func (s State) Merge(u Update) State {
	if u.Shape != nil {
		s.Shape = *u.Shape
	}
	if u.Expansion != nil {
		s.Expansion = clamp(*u.Expansion, MinExpansion, MaxExpansion)
	}
	if u.ColorPalette != nil {
		s.ColorPalette = *u.ColorPalette
	}
	if u.Speed != nil {
		s.Speed = clamp(*u.Speed, MinSpeed, MaxSpeed)
	}
	if u.RotationSpeed != nil {
		s.RotationSpeed = clamp(*u.RotationSpeed, MinRotationSpeed, MaxRotationSpeed)
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// DecodeUpdate builds an Update from loosely typed fields, as produced by
// decoding JSON into map[string]any. Both snake_case and camelCase keys are
// accepted; unknown keys are ignored. Unknown enum values and non-numeric
// numbers are errors.
func DecodeUpdate(fields map[string]any) (Update, error) {
	var u Update
	for key, raw := range fields {
		switch normalizeKey(key) {
		case "shape":
			v, ok := raw.(string)
			if !ok {
				return Update{}, fmt.Errorf("particles: shape must be a string, got %T", raw)
			}
			shape := Shape(strings.ToLower(strings.TrimSpace(v)))
			if !shape.Valid() {
				return Update{}, fmt.Errorf("particles: unknown shape %q", v)
			}
			u.Shape = &shape
		case "colorpalette":
			v, ok := raw.(string)
			if !ok {
				return Update{}, fmt.Errorf("particles: color_palette must be a string, got %T", raw)
			}
			palette := Palette(strings.ToLower(strings.TrimSpace(v)))
			if !palette.Valid() {
				return Update{}, fmt.Errorf("particles: unknown color palette %q", v)
			}
			u.ColorPalette = &palette
		case "expansion":
			v, err := toFloat("expansion", raw)
			if err != nil {
				return Update{}, err
			}
			u.Expansion = &v
		case "speed":
			v, err := toFloat("speed", raw)
			if err != nil {
				return Update{}, err
			}
			u.Speed = &v
		case "rotationspeed":
			v, err := toFloat("rotation_speed", raw)
			if err != nil {
				return Update{}, err
			}
			u.RotationSpeed = &v
		}
	}
	return u, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

func toFloat(name string, v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	}
	return 0, fmt.Errorf("particles: %s must be a number, got %T", name, v)
}

// Ptr returns a pointer to v. Handy for building updates.
func Ptr[T any](v T) *T {
	return &v
}
