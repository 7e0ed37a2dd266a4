package correction

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/risk"
)

// Field names recorded in audit entries. Concentration changes use the
// metal symbol.
const (
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldLocation  = "location"
)

type changeKind int

const (
	changeConcentration changeKind = iota + 1
	changeLatitude
	changeLongitude
	changeCoordinates
	changeLocation
)

// change is a correction mapped onto exactly one sample field (or the
// coordinate pair).
type change struct {
	kind  changeKind
	metal string
	value float64
	lat   float64
	lng   float64
	name  string
}

var (
	latWords    = map[string]bool{"lat": true, "latitude": true}
	lngWords    = map[string]bool{"lng": true, "lon": true, "longitude": true}
	coordWords  = map[string]bool{"coordinate": true, "coordinates": true, "coords": true, "gps": true}
	renameWords = map[string]bool{"name": true, "rename": true, "renamed": true, "spelling": true, "misspelled": true, "misspelt": true}

	// Element symbols that are also English words. Capitalized at the start
	// of a sentence they are usually prose ("As reported ...").
	wordSymbols = map[string]bool{"As": true, "In": true, "I": true, "Be": true, "At": true, "No": true, "Am": true}
)

// interpret maps a correction onto a sample field using the issue text.
// It returns a non-empty reason when the mapping is ambiguous or the
// suggested value does not fit the field.
func interpret(c model.Correction, s model.Sample, stds []risk.Standard) (change, string) {
	var (
		metals           = map[string]bool{}
		weak             = map[string]bool{}
		lat, lng, coords bool
		rename           bool
	)
	for _, it := range issueTokens(c.Issue) {
		tok := it.text
		sym, ok := risk.LookupMetal(stds, tok)
		if !ok {
			if _, ok = s.Concentrations[tok]; ok {
				sym = tok
			}
		}
		if ok {
			if it.sentenceStart && wordSymbols[tok] {
				weak[sym] = true
			} else {
				metals[sym] = true
			}
			continue
		}
		low := strings.ToLower(tok)
		switch {
		case latWords[low]:
			lat = true
		case lngWords[low]:
			lng = true
		case coordWords[low]:
			coords = true
		case renameWords[low]:
			rename = true
		}
	}

	// A sentence-initial word symbol counts only when nothing else names a
	// metal.
	if len(metals) == 0 {
		metals = weak
	}

	categories := 0
	for _, hit := range []bool{len(metals) > 0, lat || lng || coords, rename} {
		if hit {
			categories++
		}
	}
	switch {
	case categories == 0:
		return change{}, "issue does not name a metal, coordinate or location name"
	case categories > 1:
		return change{}, "issue names more than one kind of field"
	}

	switch {
	case len(metals) > 1:
		return change{}, "issue names more than one metal"
	case len(metals) == 1:
		var metal string
		for m := range metals {
			metal = m
		}
		v, ok := parseConcentration(c.SuggestedValue)
		if !ok {
			return change{}, "suggested value is not a non-negative concentration"
		}
		return change{kind: changeConcentration, metal: metal, value: v}, ""
	case rename:
		name := norm.NFC.String(strings.TrimSpace(c.SuggestedValue))
		if name == "" {
			return change{}, "suggested location name is empty"
		}
		return change{kind: changeLocation, name: name}, ""
	}

	if la, ln, ok := parsePair(c.SuggestedValue); ok {
		if !validLat(la) || !validLng(ln) {
			return change{}, "suggested coordinates out of range"
		}
		return change{kind: changeCoordinates, lat: la, lng: ln}, ""
	}
	v, ok := parseDegrees(c.SuggestedValue)
	switch {
	case !ok:
		return change{}, "suggested value is not a coordinate"
	case lat && !lng:
		if !validLat(v) {
			return change{}, "suggested latitude out of range"
		}
		return change{kind: changeLatitude, lat: v}, ""
	case lng && !lat:
		if !validLng(v) {
			return change{}, "suggested longitude out of range"
		}
		return change{kind: changeLongitude, lng: v}, ""
	default:
		return change{}, "single value does not say whether it is latitude or longitude"
	}
}

type issueToken struct {
	text          string
	sentenceStart bool
}

// issueTokens splits text into letter/digit runs, marking those that open
// the text or follow sentence punctuation.
func issueTokens(text string) []issueToken {
	var (
		out   []issueToken
		start = -1
		open  = true
	)
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, issueToken{text: text[start:i], sentenceStart: open})
			start, open = -1, false
		}
		if strings.ContainsRune(".!?;:", r) {
			open = true
		}
	}
	if start >= 0 {
		out = append(out, issueToken{text: text[start:], sentenceStart: open})
	}
	return out
}

func parseConcentration(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(strings.ToLower(s), "mg/l"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

func parseDegrees(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "°"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parsePair reads "lat, lng" with optional parentheses.
func parsePair(raw string) (float64, float64, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "()[]")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	la, ok1 := parseDegrees(parts[0])
	ln, ok2 := parseDegrees(parts[1])
	return la, ln, ok1 && ok2
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLng(v float64) bool { return v >= -180 && v <= 180 }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
