package lutcam

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// LutTable is a parsed ".cube" 3D lookup table. It is immutable once parsed.
type LutTable struct {
	// Size is the per-axis resolution N.
	Size int
	// Entries holds the data rows in file order, expected to be Size^3 long.
	// A channel that failed to parse is NaN and makes the entry absent at lookup.
	Entries [][3]float32

	Title     string
	DomainMin [3]float32
	DomainMax [3]float32

	// Anomalies keeps the first diagnostics found while parsing.
	Anomalies []LutParseAnomaly
	// Malformed counts data rows with at least one unusable channel.
	Malformed int

	cellsOnce sync.Once
	cells     []lutCell
}

type lutCell struct {
	rgb [3]uint8
	ok  bool
}

// Len returns the number of parsed data rows.
func (t *LutTable) Len() int { return len(t.Entries) }

// Expected returns Size^3.
func (t *LutTable) Expected() int { return t.Size * t.Size * t.Size }

// Entry returns the entry at a flat index, ok is false when the index is out of range
// or the row did not parse.
func (t *LutTable) Entry(i int) ([3]float32, bool) {
	if i < 0 || i >= len(t.Entries) {
		return [3]float32{}, false
	}
	e := t.Entries[i]
	if isNaN32(e[0]) || isNaN32(e[1]) || isNaN32(e[2]) {
		return e, false
	}
	return e, true
}

// quantized returns entries converted to output bytes, computed once per table.
func (t *LutTable) quantized() []lutCell {
	t.cellsOnce.Do(func() {
		t.cells = make([]lutCell, len(t.Entries))
		for i := range t.Entries {
			e, ok := t.Entry(i)
			if !ok {
				continue
			}
			t.cells[i] = lutCell{rgb: [3]uint8{unitToByte(e[0]), unitToByte(e[1]), unitToByte(e[2])}, ok: true}
		}
	})
	return t.cells
}

type cubeLine struct {
	num  int
	text string
}

// ParseCube parses ".cube" text. It never fails: malformed values and row count
// mismatches are recorded in Anomalies and the table stays usable.
//
// Blank and '#' lines are dropped. The first LUT_3D_SIZE directive sets Size (default 32,
// values outside 1..MaxLUTSize are an anomaly and keep the default).
// Data starts at the first remaining line that is not a TITLE, DOMAIN_MIN, DOMAIN_MAX or
// LUT_3D_SIZE directive; every line from there on is read as an R G B triple.
func ParseCube(text string) *LutTable {
	text = strings.TrimPrefix(text, "\ufeff")

	var lines []cubeLine
	for i, raw := range strings.Split(text, "\n") {
		l := strings.TrimSpace(raw)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, cubeLine{num: i + 1, text: l})
	}

	t := &LutTable{Size: DefaultLUTSize, DomainMax: [3]float32{1, 1, 1}}

	for _, l := range lines {
		if !strings.HasPrefix(l.text, directiveLUT3DSize) {
			continue
		}
		n := -1
		if f := strings.Fields(l.text); len(f) >= 2 {
			if v, err := strconv.Atoi(f[1]); err == nil {
				n = v
			}
		}
		if n < 1 || n > MaxLUTSize {
			t.addAnomaly(LutParseAnomaly{Line: l.num, Kind: AnomalyInvalidSize, Detail: l.text})
		} else {
			t.Size = n
		}
		break
	}

	start := 0
	for start < len(lines) && isDirective(lines[start].text) {
		t.parseHeader(lines[start])
		start++
	}

	t.Entries = make([][3]float32, 0, len(lines)-start)
	for _, l := range lines[start:] {
		t.Entries = append(t.Entries, t.parseRow(l))
	}

	if len(t.Entries) != t.Expected() {
		t.addAnomaly(LutParseAnomaly{
			Kind:   AnomalyRowCount,
			Detail: fmt.Sprintf("got %d rows, want %d for size %d", len(t.Entries), t.Expected(), t.Size),
		})
	}

	if len(t.Anomalies) > 0 {
		Logger().Warn("lut parse anomalies",
			"size", t.Size,
			"rows", len(t.Entries),
			"malformed", t.Malformed,
			"first", t.Anomalies[0].Error(),
		)
	}

	return t
}

// ParseCubeReader reads all of r and parses it with ParseCube.
func ParseCubeReader(r io.Reader) (*LutTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cube: %w", err)
	}
	return ParseCube(string(data)), nil
}

func isDirective(line string) bool {
	return strings.HasPrefix(line, directiveTitle) ||
		strings.HasPrefix(line, directiveDomainMin) ||
		strings.HasPrefix(line, directiveDomainMax) ||
		strings.HasPrefix(line, directiveLUT3DSize)
}

// parseHeader records TITLE and DOMAIN_* for information; they do not affect lookup.
func (t *LutTable) parseHeader(l cubeLine) {
	switch {
	case strings.HasPrefix(l.text, directiveTitle):
		t.Title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(l.text, directiveTitle)), `"`)
	case strings.HasPrefix(l.text, directiveDomainMin):
		t.DomainMin = parseTriple(strings.Fields(l.text)[1:], t.DomainMin)
	case strings.HasPrefix(l.text, directiveDomainMax):
		t.DomainMax = parseTriple(strings.Fields(l.text)[1:], t.DomainMax)
	}
}

func parseTriple(f []string, def [3]float32) [3]float32 {
	if len(f) < 3 {
		return def
	}
	var out [3]float32
	for i := 0; i < 3; i++ {
		v, ok := parseChannel(f[i])
		if !ok {
			return def
		}
		out[i] = v
	}
	return out
}

// parseChannel parses a number, saturating values outside the float32 range.
// Only tokens that are not numbers fail.
func parseChannel(tok string) (float32, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	switch {
	case v > math.MaxFloat32:
		return math.MaxFloat32, true
	case v < -math.MaxFloat32:
		return -math.MaxFloat32, true
	}
	return float32(v), true
}

func (t *LutTable) parseRow(l cubeLine) [3]float32 {
	f := strings.Fields(l.text)
	var e [3]float32
	bad := false
	for i := 0; i < 3; i++ {
		if i >= len(f) {
			e[i] = nan32
			if !bad {
				t.addAnomaly(LutParseAnomaly{Line: l.num, Kind: AnomalyMissingValue, Detail: l.text})
			}
			bad = true
			continue
		}
		v, ok := parseChannel(f[i])
		if !ok {
			e[i] = nan32
			if !bad {
				t.addAnomaly(LutParseAnomaly{Line: l.num, Kind: AnomalyMalformedValue, Detail: f[i]})
			}
			bad = true
			continue
		}
		e[i] = v
	}
	if bad {
		t.Malformed++
	}
	return e
}

func (t *LutTable) addAnomaly(a LutParseAnomaly) {
	if len(t.Anomalies) < maxStoredAnomalies {
		t.Anomalies = append(t.Anomalies, a)
	}
}

var nan32 = float32(math.NaN())

func isNaN32(v float32) bool { return math.IsNaN(float64(v)) }

// unitToByte maps [0,1] to [0,255] with round-half-up, clamping out of range values.
func unitToByte(v float32) uint8 {
	x := math.Floor(float64(v)*255 + 0.5)
	if x <= 0 {
		return 0
	}
	if x >= 255 {
		return 255
	}
	return uint8(x)
}
