package lutcam

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// WriteCube serialises a table as ".cube" text that ParseCube reads back.
func WriteCube(w io.Writer, t *LutTable) error {
	bw := bufio.NewWriter(w)
	if t.Title != "" {
		fmt.Fprintf(bw, "TITLE \"%s\"\n", t.Title)
	}
	fmt.Fprintf(bw, "LUT_3D_SIZE %d\n", t.Size)
	fmt.Fprintf(bw, "DOMAIN_MIN %g %g %g\n", t.DomainMin[0], t.DomainMin[1], t.DomainMin[2])
	fmt.Fprintf(bw, "DOMAIN_MAX %g %g %g\n", t.DomainMax[0], t.DomainMax[1], t.DomainMax[2])
	for _, e := range t.Entries {
		fmt.Fprintf(bw, "%.6f %.6f %.6f\n", e[0], e[1], e[2])
	}
	return bw.Flush()
}

// GenerateLUT builds a size^3 table in ".cube" order (red fastest) by mapping every
// lattice color through fn.
func GenerateLUT(size int, title string, fn func(c colorful.Color) colorful.Color) (*LutTable, error) {
	if size < 2 {
		return nil, fmt.Errorf("lut size must be at least 2, got %d", size)
	}
	t := &LutTable{
		Size:      size,
		Title:     title,
		DomainMax: [3]float32{1, 1, 1},
		Entries:   make([][3]float32, 0, size*size*size),
	}
	step := 1 / float64(size-1)
	for b := 0; b < size; b++ {
		for g := 0; g < size; g++ {
			for r := 0; r < size; r++ {
				c := fn(colorful.Color{R: float64(r) * step, G: float64(g) * step, B: float64(b) * step}).Clamped()
				t.Entries = append(t.Entries, [3]float32{float32(c.R), float32(c.G), float32(c.B)})
			}
		}
	}
	return t, nil
}

// IdentityLUT returns a table that maps every lattice color to itself.
func IdentityLUT(size int) (*LutTable, error) {
	return GenerateLUT(size, "Identity", func(c colorful.Color) colorful.Color { return c })
}

var presets = map[string]func(c colorful.Color) colorful.Color{
	"identity": func(c colorful.Color) colorful.Color { return c },
	"mono": func(c colorful.Color) colorful.Color {
		h, _, l := c.Hsl()
		return colorful.Hsl(h, 0, l)
	},
	"warm": func(c colorful.Color) colorful.Color {
		return colorful.Color{R: c.R * 1.08, G: c.G * 1.02, B: c.B * 0.88}
	},
	"cool": func(c colorful.Color) colorful.Color {
		return colorful.Color{R: c.R * 0.9, G: c.G * 1.0, B: c.B * 1.1}
	},
	"invert": func(c colorful.Color) colorful.Color {
		return colorful.Color{R: 1 - c.R, G: 1 - c.G, B: 1 - c.B}
	},
	"fade": func(c colorful.Color) colorful.Color {
		h, s, l := c.Hsl()
		return colorful.Hsl(h, s*0.7, 0.1+l*0.8)
	},
}

// PresetNames lists the built-in LUT presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PresetLUT generates a built-in LUT by name.
func PresetLUT(name string, size int) (*LutTable, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown lut preset %q", name)
	}
	return GenerateLUT(size, name, fn)
}
