package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// Kind names the schema a reply is expected to follow.
type Kind string

// Schema kinds.
const (
	KindValidation Kind = "validation"
	KindInsights   Kind = "insights"
)

// FallbackQualityScore is the score assigned when a validation reply has
// no usable payload.
const FallbackQualityScore = 75

// Payload is the normalized form of one reply.
type Payload struct {
	Kind Kind

	// Validation is always set for KindValidation, possibly to the fallback.
	Validation *model.QualityAssessment

	// Insights is nil for KindInsights when no insight is available.
	Insights *model.Insights

	// Fallback is true when the structured payload could not be used;
	// Reason says why.
	Fallback bool
	Reason   string
}

var requiredKeys = map[Kind][]string{
	KindValidation: {"quality_score", "overall_assessment"},
	KindInsights:   {"key_findings", "risk_assessment"},
}

// Extract normalizes raw reply text for the given schema. It never fails:
// unusable replies yield the schema's fallback.
func Extract(raw string, kind Kind) Payload {
	p := Payload{Kind: kind}

	obj, reason := decode(raw, kind)
	if obj != nil {
		switch kind {
		case KindValidation:
			qa, r := toAssessment(obj)
			if r == "" {
				p.Validation = qa
				return p
			}
			reason = r
		case KindInsights:
			ins, r := toInsights(obj)
			if r == "" {
				p.Insights = ins
				return p
			}
			reason = r
		default:
			reason = "unknown schema " + string(kind)
		}
	}

	p.Fallback = true
	p.Reason = reason
	if kind == KindValidation {
		fb := FallbackAssessment(raw)
		p.Validation = &fb
	}
	return p
}

// FallbackAssessment is the deterministic assessment used when a validation
// reply cannot be parsed: the raw text is shown as-is.
func FallbackAssessment(raw string) model.QualityAssessment {
	return model.QualityAssessment{
		QualityScore:      FallbackQualityScore,
		OverallAssessment: raw,
		IssuesFound:       []string{},
		Recommendations:   []string{},
		DataCorrections:   []model.Correction{},
		ComplianceStatus: model.ComplianceStatus{
			WHO:    model.Partial,
			Indian: model.Partial,
		},
		Fallback: true,
	}
}

func decode(raw string, kind Kind) (map[string]any, string) {
	span, ok := FirstObject(raw)
	if !ok {
		return nil, "no JSON object in reply"
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, "invalid JSON: " + err.Error()
	}
	for _, key := range requiredKeys[kind] {
		if v, present := obj[key]; !present || v == nil {
			return nil, "missing required key " + key
		}
	}
	return obj, ""
}

func toAssessment(obj map[string]any) (*model.QualityAssessment, string) {
	score, err := cast.ToFloat64E(obj["quality_score"])
	if err != nil {
		return nil, "quality_score is not a number"
	}
	overall, ok := obj["overall_assessment"].(string)
	if !ok {
		return nil, "overall_assessment is not a string"
	}

	qa := &model.QualityAssessment{
		QualityScore:      clampScore(score),
		OverallAssessment: strings.TrimSpace(overall),
		IssuesFound:       stringList(obj["issues_found"]),
		Recommendations:   stringList(obj["recommendations"]),
		DataCorrections:   corrections(obj["data_corrections"]),
		ComplianceStatus:  model.ComplianceStatus{WHO: model.Partial, Indian: model.Partial},
	}
	if cs, ok := obj["compliance_status"].(map[string]any); ok {
		qa.ComplianceStatus.WHO = complianceLevel(cs["who_standards"])
		qa.ComplianceStatus.Indian = complianceLevel(cs["indian_standards"])
	}
	return qa, ""
}

func toInsights(obj map[string]any) (*model.Insights, string) {
	if _, ok := obj["key_findings"].([]any); !ok {
		return nil, "key_findings is not a list"
	}
	risk, ok := obj["risk_assessment"].(string)
	if !ok {
		return nil, "risk_assessment is not a string"
	}
	return &model.Insights{
		KeyFindings:           stringList(obj["key_findings"]),
		RiskAssessment:        strings.TrimSpace(risk),
		PriorityMetals:        stringList(obj["priority_metals"]),
		GeographicPatterns:    text(obj["geographic_patterns"]),
		PolicyRecommendations: stringList(obj["policy_recommendations"]),
		HealthImplications:    text(obj["health_implications"]),
	}, ""
}

func clampScore(v float64) int {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}

// stringList coerces a JSON array to non-empty strings. A bare string is
// treated as a one-element list.
func stringList(v any) []string {
	out := []string{}
	switch vals := v.(type) {
	case []any:
		for _, item := range vals {
			if s := text(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(vals); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func text(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func corrections(v any) []model.Correction {
	out := []model.Correction{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := model.Correction{
			Location:       text(m["location"]),
			Issue:          text(m["issue"]),
			SuggestedValue: text(m["suggested_value"]),
			Confidence:     confidence(m["confidence"]),
		}
		if c.Location == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func complianceLevel(v any) model.ComplianceLevel {
	s := strings.ToLower(text(v))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	switch s {
	case "compliant", "fully-compliant":
		return model.Compliant
	case "non-compliant", "noncompliant", "not-compliant":
		return model.NonCompliant
	default:
		return model.Partial
	}
}

func confidence(v any) model.Confidence {
	switch strings.ToLower(text(v)) {
	case "high":
		return model.ConfidenceHigh
	case "medium":
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
