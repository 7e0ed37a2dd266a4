package api

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/ingest"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/review"
)

func (s *Server) template(w http.ResponseWriter, r *http.Request) {
	format := ingest.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = ingest.FormatCSV
	}
	switch format {
	case ingest.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case ingest.FormatXLSX:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	default:
		badRequest(w, r, "format must be csv or xlsx")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="groundwater_template.`+string(format)+`"`)
	if err := ingest.WriteTemplate(w, format); err != nil {
		fail(w, r, err)
	}
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := s.ws.Datasets(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Dataset{}
	}
	render.JSON(w, r, list)
}

// importDataset accepts either a multipart form with a "file" part or a
// raw body with ?format=csv|xlsx.
func (s *Server) importDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	name := r.URL.Query().Get("name")

	var (
		body   io.Reader
		format ingest.Format
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, r, "missing file part")
			return
		}
		defer file.Close() //nolint:errcheck
		if format, err = ingest.FormatFromPath(header.Filename); err != nil {
			badRequest(w, r, err.Error())
			return
		}
		if name == "" {
			name = strings.TrimSuffix(header.Filename, "."+string(format))
		}
		body = file
	} else {
		format = ingest.Format(strings.ToLower(r.URL.Query().Get("format")))
		if format != ingest.FormatCSV && format != ingest.FormatXLSX {
			badRequest(w, r, "format must be csv or xlsx")
			return
		}
		body = r.Body
	}
	if name == "" {
		name = "upload"
	}

	res, err := s.ws.Import(r.Context(), name, body, format)
	if err != nil {
		fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

// samples lists a dataset's samples, optionally narrowed by ?risk= to one
// tier. "unscored" selects samples that could not be scored.
func (s *Server) samples(w http.ResponseWriter, r *http.Request) {
	tier, filter, ok := riskFilter(r.URL.Query().Get("risk"))
	if !ok {
		badRequest(w, r, "risk must be safe, moderate_risk, high_risk or unscored")
		return
	}
	samples, err := s.ws.Samples(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]model.Sample, 0, len(samples))
	for _, sm := range samples {
		if !filter || sm.Risk == tier {
			out = append(out, sm)
		}
	}
	render.JSON(w, r, out)
}

func riskFilter(q string) (model.RiskTier, bool, bool) {
	switch q = strings.ToLower(strings.TrimSpace(q)); q {
	case "":
		return model.RiskUnscored, false, true
	case "unscored":
		return model.RiskUnscored, true, true
	}
	tier := model.RiskTier(q)
	return tier, true, tier.Valid()
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ws.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, sum)
}

type rescoreResponse struct {
	Scored int               `json:"scored"`
	Errors []scoreErrorEntry `json:"errors"`
}

type scoreErrorEntry struct {
	SampleID string `json:"sample_id"`
	Location string `json:"location"`
	Error    string `json:"error"`
}

func (s *Server) rescore(w http.ResponseWriter, r *http.Request) {
	res, err := s.ws.Rescore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := rescoreResponse{Scored: len(res.Samples) - len(res.Errors), Errors: []scoreErrorEntry{}}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, scoreErrorEntry{SampleID: e.SampleID, Location: e.Location, Error: e.Error()})
	}
	render.JSON(w, r, out)
}

type assessmentResponse struct {
	*model.StoredAssessment
	Band string `json:"band"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	a, err := s.ws.Validate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, assessmentResponse{StoredAssessment: a, Band: a.Assessment.Band()})
}

func (s *Server) assessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.ws.Assessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, assessmentResponse{StoredAssessment: a, Band: a.Assessment.Band()})
}

type insightsResponse struct {
	Available bool            `json:"available"`
	Insights  *model.Insights `json:"insights,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	out, err := s.ws.Insights(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, toInsightsResponse(out))
}

func toInsightsResponse(out *review.InsightsOutcome) insightsResponse {
	return insightsResponse{Available: out.Available(), Insights: out.Insights, Reason: out.Reason}
}

type acceptResponse struct {
	Applied    int                 `json:"applied"`
	Skipped    int                 `json:"skipped"`
	ChangedIDs []string            `json:"changed_sample_ids"`
	Skips      []skippedCorrection `json:"skips"`
}

type skippedCorrection struct {
	Correction model.Correction `json:"correction"`
	Reason     string           `json:"reason"`
}

func (s *Server) acceptCorrections(w http.ResponseWriter, r *http.Request) {
	res, err := s.ws.AcceptCorrections(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, toAcceptResponse(res))
}

func toAcceptResponse(res *correction.Result) acceptResponse {
	out := acceptResponse{
		Applied:    res.Applied,
		Skipped:    res.Skipped,
		ChangedIDs: res.ChangedIDs,
		Skips:      []skippedCorrection{},
	}
	if out.ChangedIDs == nil {
		out.ChangedIDs = []string{}
	}
	for _, sk := range res.Skips {
		out.Skips = append(out.Skips, skippedCorrection{Correction: sk.Correction, Reason: sk.Reason})
	}
	return out
}

func (s *Server) rejectCorrections(w http.ResponseWriter, r *http.Request) {
	n, err := s.ws.RejectCorrections(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int{"discarded": n})
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ws.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	render.JSON(w, r, entries)
}
