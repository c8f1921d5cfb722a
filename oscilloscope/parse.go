package oscilloscope

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var siPrefixes = map[string]float64{
	"p": 1e-12,
	"n": 1e-9,
	"u": 1e-6,
	"µ": 1e-6,
	"m": 1e-3,
	"k": 1e3,
	"M": 1e6,
	"G": 1e9,
}

// ParseQuantity reads a number with an optional SI prefix and unit, e.g.
// "0.006", "10E-3", "5mv", "5 mV", "500us", "2.5k".  Units of V or s are
// accepted and discarded.
func ParseQuantity(s string) (float64, error) {
	str := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(str, 64); err == nil {
		return f, nil
	}
	// split the trailing letters from the number
	idx := strings.LastIndexFunc(str, func(r rune) bool {
		return unicode.IsDigit(r) || r == '.'
	})
	if idx < 0 {
		return 0, fmt.Errorf("oscilloscope: %q is not a quantity", s)
	}
	num := strings.TrimSpace(str[:idx+1])
	suffix := strings.TrimSpace(str[idx+1:])
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("oscilloscope: %q is not a quantity", s)
	}
	// a lone unit, "5V" or "5s"
	switch strings.ToLower(suffix) {
	case "v", "s":
		return f, nil
	}
	// prefix and optional unit; "m" is milli, uppercase M is mega
	runes := []rune(suffix)
	prefix := string(runes[0])
	unit := strings.ToLower(string(runes[1:]))
	if unit != "" && unit != "v" && unit != "s" {
		return 0, fmt.Errorf("oscilloscope: unknown unit %q in %q", suffix, s)
	}
	mult, ok := siPrefixes[prefix]
	if !ok {
		return 0, fmt.Errorf("oscilloscope: unknown prefix %q in %q", prefix, s)
	}
	return f * mult, nil
}

var sourceFamilies = []string{"CH", "MATH", "REF"}

// NormalizeSource turns the many ways of naming a source into the canonical
// uppercase form: 1, "1", "ch1", "Ch 1" become "CH1"; "math2" becomes "MATH2".
// Channel numbers outside [1,max] for their family are rejected.
func NormalizeSource(s string) (string, error) {
	str := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if str == "" {
		return "", fmt.Errorf("oscilloscope: empty source")
	}
	if _, err := strconv.Atoi(str); err == nil {
		str = "CH" + str
	}
	for _, fam := range sourceFamilies {
		if !strings.HasPrefix(str, fam) {
			continue
		}
		n, err := strconv.Atoi(str[len(fam):])
		if err != nil {
			break
		}
		if n < 1 || n > familyMax(fam) {
			return "", fmt.Errorf("oscilloscope: source %q out of range", s)
		}
		return fam + strconv.Itoa(n), nil
	}
	return "", fmt.Errorf("oscilloscope: unknown source %q", s)
}

// NormalizeChannel is NormalizeSource restricted to the analog inputs, for
// settings such as vertical scale which math and reference traces lack
func NormalizeChannel(s string) (string, error) {
	src, err := NormalizeSource(s)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(src, "CH") {
		return "", fmt.Errorf("oscilloscope: %s is not an input channel", src)
	}
	return src, nil
}

func familyMax(fam string) int {
	switch fam {
	case "MATH":
		return 3
	default:
		return 4
	}
}

// SplitSources normalizes a comma or space separated list of sources
func SplitSources(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || unicode.IsSpace(r) })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		src, err := NormalizeSource(f)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
