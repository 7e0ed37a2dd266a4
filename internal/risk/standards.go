package risk

import (
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Standard is the permissible limit for one metal in drinking water.
type Standard struct {
	Metal string  `yaml:"metal"` // symbol, e.g. "Pb"
	Name  string  `yaml:"name"`
	Limit float64 `yaml:"limit"` // mg/L
}

// DefaultStandards returns the IS 10500:2012 acceptable limits for the
// metals the upload template carries.
func DefaultStandards() []Standard {
	return []Standard{
		{Metal: "Pb", Name: "lead", Limit: 0.01},
		{Metal: "As", Name: "arsenic", Limit: 0.01},
		{Metal: "Cd", Name: "cadmium", Limit: 0.003},
		{Metal: "Cr", Name: "chromium", Limit: 0.05},
		{Metal: "Hg", Name: "mercury", Limit: 0.001},
		{Metal: "Fe", Name: "iron", Limit: 0.3},
		{Metal: "Mn", Name: "manganese", Limit: 0.1},
		{Metal: "Zn", Name: "zinc", Limit: 5},
		{Metal: "Cu", Name: "copper", Limit: 0.05},
		{Metal: "Ni", Name: "nickel", Limit: 0.02},
	}
}

// LoadStandards reads a standards table from a YAML file of the form
//
//	standards:
//	  - metal: Pb
//	    name: lead
//	    limit: 0.01
func LoadStandards(path string) ([]Standard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "risk: read standards %s", path)
	}

	var wrapper struct {
		Standards []Standard `yaml:"standards"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "risk: parse standards")
	}
	if err := ValidateStandards(wrapper.Standards); err != nil {
		return nil, err
	}
	return wrapper.Standards, nil
}

// ValidateStandards checks that a standards table is usable for scoring.
func ValidateStandards(standards []Standard) error {
	if len(standards) == 0 {
		return eris.New("risk: standards table is empty")
	}
	seen := make(map[string]bool, len(standards))
	var errs []string
	for _, s := range standards {
		if strings.TrimSpace(s.Metal) == "" {
			errs = append(errs, "metal symbol is required")
			continue
		}
		if seen[s.Metal] {
			errs = append(errs, "duplicate metal "+s.Metal)
		}
		seen[s.Metal] = true
		if !(s.Limit > 0) {
			errs = append(errs, s.Metal+": limit must be > 0")
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("risk: invalid standards: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Metals returns the metal symbols of a standards table in table order.
func Metals(standards []Standard) []string {
	out := make([]string, len(standards))
	for i, s := range standards {
		out[i] = s.Metal
	}
	return out
}

// LookupMetal resolves a symbol or common name ("Pb", "lead") to the
// table's symbol. Symbols match case-sensitively, names case-insensitively.
func LookupMetal(standards []Standard, token string) (string, bool) {
	idx := slices.IndexFunc(standards, func(s Standard) bool {
		return s.Metal == token || (s.Name != "" && strings.EqualFold(s.Name, token))
	})
	if idx < 0 {
		return "", false
	}
	return standards[idx].Metal, true
}
