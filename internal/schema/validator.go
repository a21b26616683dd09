package schema

import (
	"fmt"
	"log/slog"
	"strings"

	"retailpulse/internal/dataset"
)

const maxReportedHeaders = 10

// Thresholds gate type detection. Both must hold for a best match to be
// accepted.
type Thresholds struct {
	MinGroupRatio float64
	MinScore      int
}

// DefaultThresholds returns 60% of required groups and a score of 6.
func DefaultThresholds() Thresholds {
	return Thresholds{MinGroupRatio: 0.60, MinScore: 6}
}

// ValidationResult is the structured outcome of Validate. It is returned for
// every input; schema problems are reported here, never as errors.
type ValidationResult struct {
	Valid          bool       `json:"valid"`
	Message        string     `json:"message"`
	MissingColumns []string   `json:"missing_columns"`
	DetectedType   EntityType `json:"detected_type,omitempty"`
}

// Detection is the scoring outcome for the best-matching schema.
type Detection struct {
	Type          EntityType `json:"type"`
	Score         int        `json:"score"`
	GroupsMatched int        `json:"groups_matched"`
	TotalGroups   int        `json:"total_groups"`
}

// Validator checks tables against the registry.
type Validator struct {
	registry   *Registry
	thresholds Thresholds
	logger     *slog.Logger
}

// NewValidator creates a validator. A nil registry uses DefaultRegistry and
// zero thresholds fall back to DefaultThresholds.
func NewValidator(registry *Registry, thresholds Thresholds, logger *slog.Logger) *Validator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	def := DefaultThresholds()
	if thresholds.MinGroupRatio <= 0 {
		thresholds.MinGroupRatio = def.MinGroupRatio
	}
	if thresholds.MinScore <= 0 {
		thresholds.MinScore = def.MinScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		registry:   registry,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "schema_validator")),
	}
}

// Registry exposes the validator's schema registry.
func (v *Validator) Registry() *Registry {
	return v.registry
}

// Validate checks t against the expected entity type. When required groups
// are missing it runs type detection to suggest what the table actually is.
func (v *Validator) Validate(t *dataset.Table, expected EntityType) ValidationResult {
	if t.Empty() {
		return ValidationResult{Message: "File is empty", MissingColumns: []string{}}
	}

	headers := make([]string, 0, len(t.Columns()))
	for _, h := range t.Columns() {
		headers = append(headers, NormalizeHeader(h))
	}
	present := toSet(headers)

	s, ok := v.registry.Lookup(expected)
	if !ok {
		return ValidationResult{
			Message:        fmt.Sprintf("Unknown file type: %s", expected),
			MissingColumns: []string{},
		}
	}

	missing := []string{}
	for _, group := range s.Required {
		if !anyPresent(group, present) {
			missing = append(missing, group[0])
		}
	}
	if len(missing) == 0 {
		return ValidationResult{
			Valid:          true,
			Message:        fmt.Sprintf("Valid %s file", expected),
			MissingColumns: missing,
			DetectedType:   expected,
		}
	}

	det, found := v.detect(present)
	v.logger.Debug("Schema mismatch, ran detection",
		slog.String("expected", string(expected)),
		slog.Any("missing", missing),
		slog.String("best", string(det.Type)),
		slog.Int("score", det.Score),
		slog.Bool("accepted", found))

	if found && det.Type == expected {
		return ValidationResult{
			Message: fmt.Sprintf("This is a %s file but it is missing columns: %s",
				expected, strings.Join(missing, ", ")),
			MissingColumns: missing,
			DetectedType:   expected,
		}
	}
	if found {
		return ValidationResult{
			Message: fmt.Sprintf("This looks like a %s file, not a %s file. Missing columns: %s",
				det.Type, expected, strings.Join(missing, ", ")),
			MissingColumns: missing,
			DetectedType:   det.Type,
		}
	}

	shown := headers
	if len(shown) > maxReportedHeaders {
		shown = shown[:maxReportedHeaders]
	}
	return ValidationResult{
		Message: fmt.Sprintf("Unrecognized file. Missing columns for %s: %s. Found columns: %s",
			expected, strings.Join(missing, ", "), strings.Join(shown, ", ")),
		MissingColumns: missing,
	}
}

// Detect scores the table's normalized headers against every schema and
// returns the best match, with ok reporting whether it clears the thresholds.
func (v *Validator) Detect(t *dataset.Table) (Detection, bool) {
	headers := t.Columns()
	for i, h := range headers {
		headers[i] = NormalizeHeader(h)
	}
	return v.detect(toSet(headers))
}

func (v *Validator) detect(present map[string]struct{}) (Detection, bool) {
	var best Detection
	first := true
	for _, s := range v.registry.schemas {
		d := Detection{Type: s.Type, TotalGroups: len(s.Required)}
		for _, group := range s.Required {
			if anyPresent(group, present) {
				d.GroupsMatched++
				d.Score += 3
			}
		}
		for _, id := range s.Identifiers {
			if _, ok := present[id]; ok {
				d.Score++
			}
		}
		if first || d.Score > best.Score {
			best = d
			first = false
		}
	}
	if first || best.TotalGroups == 0 {
		return Detection{}, false
	}
	ratio := float64(best.GroupsMatched) / float64(best.TotalGroups)
	if ratio >= v.thresholds.MinGroupRatio && best.Score >= v.thresholds.MinScore {
		return best, true
	}
	return best, false
}

func anyPresent(variants []string, present map[string]struct{}) bool {
	for _, v := range variants {
		if _, ok := present[v]; ok {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[s] = struct{}{}
	}
	return out
}
