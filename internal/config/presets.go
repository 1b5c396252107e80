package config

import (
	"fmt"
	"sort"
)

// Resolution preset names.
const (
	PresetQVGA  = "qvga"
	PresetVGA   = "vga"
	Preset720p  = "720p"
	Preset1080p = "1080p"
)

// Resolution is a capture frame size.
type Resolution struct {
	Width  int
	Height int
}

// Presets returns the named capture resolutions. Haar detection cost
// grows with frame area, so vga is the default.
func Presets() map[string]Resolution {
	return map[string]Resolution{
		PresetQVGA:  {Width: 320, Height: 240},
		PresetVGA:   {Width: DefaultWidth, Height: DefaultHeight},
		Preset720p:  {Width: 1280, Height: 720},
		Preset1080p: {Width: 1920, Height: 1080},
	}
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns the resolution for name.
func LookupPreset(name string) (Resolution, error) {
	r, ok := Presets()[name]
	if !ok {
		return Resolution{}, fmt.Errorf("unknown preset %q (have %v)", name, PresetNames())
	}
	return r, nil
}
