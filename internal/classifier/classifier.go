// Package classifier infers the entity type of a generic draft payload by
// scoring its JSON keys against per-type templates. It is best-effort by
// design: below the confidence threshold it refuses to guess, and callers
// must not auto-enqueue such drafts.
package classifier

import "github.com/talentflow/offlinecache/internal/models"

// templates lists the characteristic field names per entity type.
var templates = map[models.EntityType][]string{
	models.EntityRequirement: {"title", "skills", "client", "rate", "location", "status"},
	models.EntityConsultant:  {"name", "email", "phone", "skills", "experience", "availability"},
	models.EntityInterview:   {"requirement_id", "consultant_id", "scheduled_at", "mode", "feedback"},
	models.EntityDocument:    {"name", "file_type", "size", "url"},
	models.EntityEmail:       {"subject", "body", "recipients", "sent_at"},
}

// minRatio and minExactMatches are the acceptance thresholds: a guess
// stands when at least half the template's keys are present, or at least
// two keys match exactly. Heuristic, not a contract.
const (
	minRatio        = 0.5
	minExactMatches = 2
)

// Result is one classification outcome.
type Result struct {
	Type       models.EntityType
	Confidence float64
	Matches    int
}

// Classify scores payload against every template and returns the best
// match. ok is false when no type clears the threshold; in that case the
// caller must leave the draft alone.
func Classify(payload map[string]any) (Result, bool) {
	var best Result
	for t, keys := range templates {
		matches := 0
		for _, key := range keys {
			if _, present := payload[key]; present {
				matches++
			}
		}
		confidence := float64(matches) / float64(len(keys))
		if matches > best.Matches || (matches == best.Matches && confidence > best.Confidence) {
			best = Result{Type: t, Confidence: confidence, Matches: matches}
		}
	}

	ok := best.Confidence >= minRatio || best.Matches >= minExactMatches
	if !ok {
		return best, false
	}
	return best, true
}
