package review

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// InsightsPrefix is the number of samples embedded verbatim in an insights
// prompt. The full count is sent separately.
const InsightsPrefix = 10

// SystemPrompt is the shared system instruction for both review tasks.
const SystemPrompt = `You are an environmental scientist reviewing groundwater heavy metal monitoring data from India.

Rules:
- Base every statement on the data provided
- Concentrations are in mg/L
- Compare against WHO guidelines and IS 10500:2012 drinking water limits
- Answer with a single JSON object in the requested shape and nothing else`

const validationSchema = `{
  "quality_score": number (0-100),
  "overall_assessment": "detailed assessment text",
  "issues_found": ["list of specific issues"],
  "recommendations": ["list of recommendations"],
  "data_corrections": [
    {
      "location": "site name exactly as given in the data",
      "issue": "problem description naming the metal symbol, latitude, longitude or location name being corrected",
      "suggested_value": "corrected value",
      "confidence": "high/medium/low"
    }
  ],
  "compliance_status": {
    "who_standards": "compliant/non-compliant/partial",
    "indian_standards": "compliant/non-compliant/partial"
  }
}`

const insightsSchema = `{
  "key_findings": ["list of main findings"],
  "risk_assessment": "overall risk level and explanation",
  "priority_metals": ["metals of highest concern"],
  "geographic_patterns": "spatial distribution insights",
  "policy_recommendations": ["actionable recommendations"],
  "health_implications": "potential health impacts"
}`

// promptSample is the view of a sample sent to the reasoning service.
// Non-finite concentrations are left out since they cannot be encoded.
type promptSample struct {
	Location       string             `json:"location"`
	Latitude       *float64           `json:"latitude,omitempty"`
	Longitude      *float64           `json:"longitude,omitempty"`
	Concentrations map[string]float64 `json:"concentrations_mg_l"`
	SamplingDate   string             `json:"sampling_date,omitempty"`
	HMPI           *float64           `json:"hmpi_score,omitempty"`
	Risk           string             `json:"risk_classification,omitempty"`
}

func toPromptSamples(samples []model.Sample) []promptSample {
	out := make([]promptSample, 0, len(samples))
	for _, s := range samples {
		ps := promptSample{
			Location:       s.Location,
			Latitude:       s.Latitude,
			Longitude:      s.Longitude,
			Concentrations: make(map[string]float64, len(s.Concentrations)),
			Risk:           string(s.Risk),
		}
		for _, metal := range slices.Sorted(maps.Keys(s.Concentrations)) {
			v := s.Concentrations[metal]
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				ps.Concentrations[metal] = v
			}
		}
		if !s.SampledAt.IsZero() {
			ps.SamplingDate = s.SampledAt.Format(time.DateOnly)
		}
		if s.Risk.Valid() {
			hmpi := s.HMPI
			ps.HMPI = &hmpi
		}
		out = append(out, ps)
	}
	return out
}

func encodeSamples(samples []model.Sample) (string, error) {
	data, err := json.MarshalIndent(toPromptSamples(samples), "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "review: encode samples")
	}
	return string(data), nil
}

// ValidationPrompt builds the data-quality review prompt over the full
// dataset.
func ValidationPrompt(samples []model.Sample) (string, error) {
	data, err := encodeSamples(samples)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Analyze this groundwater heavy metal data for scientific accuracy and completeness.\n\n")
	fmt.Fprintf(&sb, "Data:\n%s\n\n", data)
	sb.WriteString(`Evaluate:
1. Metal concentration ranges (are they realistic for groundwater?)
2. Location data accuracy (valid coordinates?)
3. Data completeness and consistency
4. Potential outliers or errors
5. WHO/Indian standards compliance

`)
	fmt.Fprintf(&sb, "Provide your assessment in this JSON format:\n%s\n", validationSchema)
	return sb.String(), nil
}

// InsightsPrompt builds the narrative insights prompt. Only the first
// InsightsPrefix samples are embedded; the total count is a separate scalar.
func InsightsPrompt(samples []model.Sample) (string, error) {
	prefix := samples[:min(len(samples), InsightsPrefix)]
	data, err := encodeSamples(prefix)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Analyze this groundwater dataset and provide scientific insights.\n\n")
	fmt.Fprintf(&sb, "Dataset (first %d samples):\n%s\n", len(prefix), data)
	fmt.Fprintf(&sb, "Total samples: %d\n\n", len(samples))
	sb.WriteString(`Provide insights about:
1. Overall contamination patterns
2. Geographic risk distribution
3. Most concerning metals
4. Trend analysis
5. Policy recommendations

`)
	fmt.Fprintf(&sb, "Format as JSON:\n%s\n", insightsSchema)
	return sb.String(), nil
}
