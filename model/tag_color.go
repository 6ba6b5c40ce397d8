package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TagColor is one of the eight palette colors a tag can carry
type TagColor string

const (
	ColorRed    TagColor = "red"
	ColorOrange TagColor = "orange"
	ColorYellow TagColor = "yellow"
	ColorGreen  TagColor = "green"
	ColorBlue   TagColor = "blue"
	ColorPurple TagColor = "purple"
	ColorPink   TagColor = "pink"
	ColorGray   TagColor = "gray"
)

// ErrInvalidColor is returned when a color is outside the palette
var ErrInvalidColor = errors.New("invalid tag color")

// Palette lists the tag colors in display order
var Palette = []TagColor{
	ColorRed, ColorOrange, ColorYellow, ColorGreen,
	ColorBlue, ColorPurple, ColorPink, ColorGray,
}

// Valid reports whether c belongs to the palette
func (c TagColor) Valid() bool {
	for _, p := range Palette {
		if c == p {
			return true
		}
	}
	return false
}

// ParseTagColor converts a string into a palette color
func ParseTagColor(s string) (TagColor, error) {
	c := TagColor(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// UnmarshalJSON rejects colors outside the palette
func (c *TagColor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTagColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
