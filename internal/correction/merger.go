// Package correction applies or discards the data corrections proposed by a
// validation run, keeping an audit trail of every decision.
package correction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/risk"
)

// ErrBatchDecided is returned when applying a batch that was already
// applied or discarded.
var ErrBatchDecided = eris.New("correction: batch already decided")

// UnmatchedCorrection records a correction that could not be applied.
type UnmatchedCorrection struct {
	Correction model.Correction
	Reason     string
}

func (e *UnmatchedCorrection) Error() string {
	return fmt.Sprintf("correction for %q skipped: %s", e.Correction.Location, e.Reason)
}

// Result is the outcome of applying one batch.
type Result struct {
	// Samples is a corrected copy of the input, in input order.
	Samples []model.Sample

	// ChangedIDs lists the IDs of samples that were modified, in first
	// change order.
	ChangedIDs []string

	Applied int
	Skipped int
	Skips   []*UnmatchedCorrection
	Audit   []model.AuditEntry
}

// Changed returns the modified samples from Samples.
func (r *Result) Changed() []model.Sample {
	want := make(map[string]bool, len(r.ChangedIDs))
	for _, id := range r.ChangedIDs {
		want[id] = true
	}
	var out []model.Sample
	for _, s := range r.Samples {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// Merger applies correction batches against a sample set.
type Merger struct {
	risk  *risk.Model
	now   func() time.Time
	newID func() string
}

// NewMerger creates a Merger that rescores changed samples with rm.
func NewMerger(rm *risk.Model) *Merger {
	return &Merger{risk: rm, now: time.Now, newID: uuid.NewString}
}

// Apply matches each correction in batch to a sample by exact location
// name and applies it. Corrections that cannot be matched or mapped to a
// single field are skipped individually. The input slice is not modified.
func (m *Merger) Apply(samples []model.Sample, batch model.StoredAssessment) (*Result, error) {
	if batch.Status.Decided() {
		return nil, eris.Wrapf(ErrBatchDecided, "correction: apply batch %s (%s)", batch.ID, batch.Status)
	}

	res := &Result{Samples: model.CloneSamples(samples)}
	changed := map[string]bool{}
	stds := m.risk.Standards()

	for _, c := range batch.Assessment.DataCorrections {
		idx, reason := locate(res.Samples, c.Location)
		var ch change
		if reason == "" {
			ch, reason = interpret(c, res.Samples[idx], stds)
		}
		if reason == "" && ch.kind == changeLocation {
			if other, _ := locate(res.Samples, ch.name); other >= 0 && other != idx {
				reason = fmt.Sprintf("location %q already exists", ch.name)
			}
		}
		if reason != "" {
			res.skip(m.entry(batch, c, model.AuditSkipped), reason)
			continue
		}

		entries := m.applyChange(batch, c, &res.Samples[idx], ch)
		res.Audit = append(res.Audit, entries...)
		res.Applied++
		if id := res.Samples[idx].ID; !changed[id] {
			changed[id] = true
			res.ChangedIDs = append(res.ChangedIDs, id)
		}
	}

	zap.L().Info("correction: batch applied",
		zap.String("dataset_id", batch.DatasetID),
		zap.String("assessment_id", batch.ID),
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Discard records the operator's rejection of a pending batch. It never
// modifies samples. Discarding an already-decided batch is a no-op and
// returns no entries.
func (m *Merger) Discard(batch model.StoredAssessment) []model.AuditEntry {
	if batch.Status.Decided() {
		return nil
	}
	entries := make([]model.AuditEntry, 0, len(batch.Assessment.DataCorrections))
	for _, c := range batch.Assessment.DataCorrections {
		entries = append(entries, m.entry(batch, c, model.AuditDiscarded))
	}
	return entries
}

func (r *Result) skip(e model.AuditEntry, reason string) {
	e.Reason = reason
	r.Audit = append(r.Audit, e)
	r.Skips = append(r.Skips, &UnmatchedCorrection{Correction: e.Correction, Reason: reason})
	r.Skipped++
}

// locate returns the index of the single sample at location. Duplicate
// names are ambiguous and rejected.
func locate(samples []model.Sample, location string) (int, string) {
	idx, n := -1, 0
	for i, s := range samples {
		if s.Location == location {
			if idx < 0 {
				idx = i
			}
			n++
		}
	}
	switch n {
	case 0:
		return -1, fmt.Sprintf("no sample at location %q", location)
	case 1:
		return idx, ""
	default:
		return idx, fmt.Sprintf("location %q matches %d samples", location, n)
	}
}

func (m *Merger) entry(batch model.StoredAssessment, c model.Correction, action model.AuditAction) model.AuditEntry {
	return model.AuditEntry{
		ID:           m.newID(),
		DatasetID:    batch.DatasetID,
		AssessmentID: batch.ID,
		Action:       action,
		Correction:   c,
		CreatedAt:    m.now().UTC(),
	}
}

// applyChange mutates s in place, rescores it and returns one audit entry
// per field changed.
func (m *Merger) applyChange(batch model.StoredAssessment, c model.Correction, s *model.Sample, ch change) []model.AuditEntry {
	type fieldChange struct{ field, old, new string }
	var fields []fieldChange

	switch ch.kind {
	case changeConcentration:
		old := ""
		if v, ok := s.Concentrations[ch.metal]; ok {
			old = formatFloat(v)
		}
		if s.Concentrations == nil {
			s.Concentrations = map[string]float64{}
		}
		s.Concentrations[ch.metal] = ch.value
		fields = append(fields, fieldChange{ch.metal, old, formatFloat(ch.value)})
	case changeLatitude:
		fields = append(fields, fieldChange{FieldLatitude, formatOptional(s.Latitude), formatFloat(ch.lat)})
		s.Latitude = model.Float(ch.lat)
	case changeLongitude:
		fields = append(fields, fieldChange{FieldLongitude, formatOptional(s.Longitude), formatFloat(ch.lng)})
		s.Longitude = model.Float(ch.lng)
	case changeCoordinates:
		fields = append(fields,
			fieldChange{FieldLatitude, formatOptional(s.Latitude), formatFloat(ch.lat)},
			fieldChange{FieldLongitude, formatOptional(s.Longitude), formatFloat(ch.lng)},
		)
		s.Latitude, s.Longitude = model.Float(ch.lat), model.Float(ch.lng)
	case changeLocation:
		fields = append(fields, fieldChange{FieldLocation, s.Location, ch.name})
		s.Location = ch.name
	}

	oldHMPI, oldRisk := s.HMPI, s.Risk
	rescored, err := m.risk.Rescore(*s)
	if err != nil {
		zap.L().Warn("correction: rescore failed",
			zap.String("sample_id", s.ID),
			zap.Error(err),
		)
	}
	*s = rescored

	entries := make([]model.AuditEntry, 0, len(fields))
	for _, f := range fields {
		e := m.entry(batch, c, model.AuditApplied)
		e.SampleID = s.ID
		e.Field = f.field
		e.OldValue = f.old
		e.NewValue = f.new
		e.OldHMPI, e.NewHMPI = oldHMPI, s.HMPI
		e.OldRisk, e.NewRisk = oldRisk, s.Risk
		entries = append(entries, e)
	}
	return entries
}
