// Package scalarunit parses and normalizes TOSCA scalar-unit values
// ("10 GB", "500 ms", "2.5 GHz", "100 Mbps") to a canonical base magnitude
// so constraint clauses can compare them regardless of the unit the
// template author wrote.
package scalarunit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies a scalar-unit family.
type Kind string

const (
	KindSize      Kind = "scalar-unit.size"
	KindTime      Kind = "scalar-unit.time"
	KindFrequency Kind = "scalar-unit.frequency"
	KindBitrate   Kind = "scalar-unit.bitrate"
)

// unitEntry is one row of the unit table: a unit's kind and its multiplier
// onto the family's canonical base (bytes, seconds, Hz, bits/s).
type unitEntry struct {
	kind       Kind
	multiplier float64
	canonical  string // canonical spelling re-emitted for round-trip
}

// Units are matched case-insensitively except that SI vs binary size prefixes
// ("kB" vs "KiB") are distinguished by letter case and the "i" infix, per
// §4.A. We therefore key the table by the exact spelling and fall back to a
// case-insensitive scan for everything else.
var units = buildUnitTable()

func buildUnitTable() map[string]unitEntry {
	const (
		kb = 1000.0
		mb = kb * 1000.0
		gb = mb * 1000.0
		tb = gb * 1000.0

		kib = 1024.0
		mib = kib * 1024.0
		gib = mib * 1024.0
		tib = gib * 1024.0
	)
	t := map[string]unitEntry{
		"B":   {KindSize, 1, "B"},
		"kB":  {KindSize, kb, "kB"},
		"KiB": {KindSize, kib, "KiB"},
		"MB":  {KindSize, mb, "MB"},
		"MiB": {KindSize, mib, "MiB"},
		"GB":  {KindSize, gb, "GB"},
		"GiB": {KindSize, gib, "GiB"},
		"TB":  {KindSize, tb, "TB"},
		"TiB": {KindSize, tib, "TiB"},

		"d":  {KindTime, 86400, "d"},
		"h":  {KindTime, 3600, "h"},
		"m":  {KindTime, 60, "m"},
		"s":  {KindTime, 1, "s"},
		"ms": {KindTime, 1e-3, "ms"},
		"us": {KindTime, 1e-6, "us"},
		"ns": {KindTime, 1e-9, "ns"},

		"Hz":  {KindFrequency, 1, "Hz"},
		"kHz": {KindFrequency, 1e3, "kHz"},
		"MHz": {KindFrequency, 1e6, "MHz"},
		"GHz": {KindFrequency, 1e9, "GHz"},

		"bps":   {KindBitrate, 1, "bps"},
		"Kbps":  {KindBitrate, kb, "Kbps"},
		"Kibps": {KindBitrate, kib, "Kibps"},
		"Mbps":  {KindBitrate, mb, "Mbps"},
		"Mibps": {KindBitrate, mib, "Mibps"},
		"Gbps":  {KindBitrate, gb, "Gbps"},
		"Gibps": {KindBitrate, gib, "Gibps"},
		"Tbps":  {KindBitrate, tb, "Tbps"},
		"Tibps": {KindBitrate, tib, "Tibps"},
	}
	return t
}

// Value is a normalized scalar-unit: a magnitude expressed in the family's
// canonical base plus the unit the author originally wrote (kept for
// round-trip re-emission).
type Value struct {
	Kind      Kind
	Base      float64 // magnitude normalized to the canonical base unit
	Magnitude float64 // the original magnitude as written
	Unit      string  // canonical spelling of the unit as written
}

// Parse parses a scalar-unit string such as "10 GB" or "500ms". Whitespace
// between the magnitude and unit is optional. Unit matching is
// case-insensitive except where SI vs binary prefixes must be disambiguated.
func Parse(s string) (Value, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return Value{}, fmt.Errorf("scalarunit: empty value")
	}

	i := 0
	for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == '-' || s[i] == '+' || s[i] == 'e' || s[i] == 'E') {
		i++
	}
	numPart := strings.TrimSpace(s[:i])
	unitPart := strings.TrimSpace(s[i:])
	if numPart == "" || unitPart == "" {
		return Value{}, fmt.Errorf("scalarunit: %q is not a valid scalar-unit (expected \"<number> <unit>\")", s)
	}

	mag, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return Value{}, fmt.Errorf("scalarunit: invalid magnitude %q: %w", numPart, err)
	}

	entry, canonicalUnit, err := lookupUnit(unitPart)
	if err != nil {
		return Value{}, err
	}

	return Value{
		Kind:      entry.kind,
		Base:      mag * entry.multiplier,
		Magnitude: mag,
		Unit:      canonicalUnit,
	}, nil
}

func lookupUnit(u string) (unitEntry, string, error) {
	if e, ok := units[u]; ok {
		return e, u, nil
	}
	// Case-insensitive fallback; size units keep their exact binary/SI
	// distinction, so this only helps non-ambiguous families (time,
	// frequency, bitrate) and exact-case mismatches elsewhere.
	for name, e := range units {
		if strings.EqualFold(name, u) {
			return e, name, nil
		}
	}
	return unitEntry{}, "", fmt.Errorf("scalarunit: unrecognized unit %q", u)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// String re-emits the canonical form, e.g. "10 GB".
func (v Value) String() string {
	return fmt.Sprintf("%s %s", trimTrailingZeros(v.Magnitude), v.Unit)
}

func trimTrailingZeros(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Compare compares two scalar-unit values of the same Kind on their
// normalized base magnitude. It returns an error if the kinds differ (a
// type error per §4.A).
func Compare(a, b Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("scalarunit: cannot compare %s to %s (unit family mismatch)", a.Kind, b.Kind)
	}
	switch {
	case a.Base < b.Base:
		return -1, nil
	case a.Base > b.Base:
		return 1, nil
	default:
		return 0, nil
	}
}
