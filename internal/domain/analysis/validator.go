package analysis

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
)

// Severity of a validation issue. Hard issues invalidate the run.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Issue found by the validator
type Issue struct {
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Penalty  int      `json:"penalty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s", i.Stage, i.Message)
}

// StageQuality holds the 0-100 sub-score per checked area.
type StageQuality struct {
	Enrich      int `json:"enrich"`
	Classify    int `json:"classify"`
	Score       int `json:"score"`
	Integration int `json:"integration"`
}

// Verdict is the validator output.
type Verdict struct {
	Quality    int          `json:"quality"`
	Valid      bool         `json:"valid"`
	Confidence Confidence   `json:"confidence"`
	Issues     []Issue      `json:"issues"`
	Stages     StageQuality `json:"stages"`
}

// HasHardIssues reports whether any issue is hard.
func (v Verdict) HasHardIssues() bool {
	for _, is := range v.Issues {
		if is.Severity == SeverityHard {
			return true
		}
	}
	return false
}

// Messages returns the issues as plain strings, in order.
func (v Verdict) Messages() []string {
	out := make([]string, 0, len(v.Issues))
	for _, is := range v.Issues {
		out = append(out, is.String())
	}
	return out
}

// ValidatorConfig holds the configurable thresholds.
type ValidatorConfig struct {
	ExpectedComponents int     `yaml:"expectedComponents"`
	ValidThreshold     int     `yaml:"validThreshold"`
	HighThreshold      int     `yaml:"highThreshold"`
	MediumThreshold    int     `yaml:"mediumThreshold"`
	LowConfidenceFloor float64 `yaml:"lowConfidenceFloor"`
}

// DefaultValidatorConfig returns the stock thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ExpectedComponents: 4,
		ValidThreshold:     70,
		HighThreshold:      80,
		MediumThreshold:    60,
		LowConfidenceFloor: 0.5,
	}
}

// WithDefaults fills zero fields from DefaultValidatorConfig.
func (c ValidatorConfig) WithDefaults() ValidatorConfig {
	d := DefaultValidatorConfig()
	if c.ExpectedComponents <= 0 {
		c.ExpectedComponents = d.ExpectedComponents
	}
	if c.ValidThreshold <= 0 {
		c.ValidThreshold = d.ValidThreshold
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = d.HighThreshold
	}
	if c.MediumThreshold <= 0 {
		c.MediumThreshold = d.MediumThreshold
	}
	if c.LowConfidenceFloor <= 0 {
		c.LowConfidenceFloor = d.LowConfidenceFloor
	}
	return c
}

// Tier maps a quality score to a confidence tier. Monotonic in quality.
func (c ValidatorConfig) Tier(quality int) Confidence {
	switch {
	case quality >= c.HighThreshold:
		return ConfidenceHigh
	case quality >= c.MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

var genericNames = []string{"component", "part", "item", "product", "material"}

// ComprehensiveValidator scores enrich, classify, score and their integration.
// It keeps no state between calls.
type ComprehensiveValidator struct {
	cfg ValidatorConfig
}

func NewComprehensiveValidator(cfg ValidatorConfig) *ComprehensiveValidator {
	return &ComprehensiveValidator{cfg: cfg.WithDefaults()}
}

// Config returns the effective thresholds.
func (v *ComprehensiveValidator) Config() ValidatorConfig { return v.cfg }

// sheet accumulates issues and penalties for one stage
type sheet struct {
	stage  Stage
	score  int
	issues []Issue
}

func newSheet(stage Stage) *sheet { return &sheet{stage: stage, score: 100} }

func (s *sheet) add(sev Severity, penalty int, format string, args ...any) {
	s.issues = append(s.issues, Issue{
		Stage:    s.stage,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Penalty:  penalty,
	})
	s.score -= penalty
}

func (s *sheet) zero(sev Severity, msg string) {
	s.issues = append(s.issues, Issue{Stage: s.stage, Severity: sev, Message: msg, Penalty: s.score})
	s.score = 0
}

func (s *sheet) final() int {
	if s.score < 0 {
		return 0
	}
	return s.score
}

func (v *ComprehensiveValidator) Validate(enrich []SubComponent, classify []Classification, score []ScoreSet) Verdict {
	es := v.checkEnrich(enrich)
	cs := v.checkClassify(enrich, classify)
	ss := v.checkScore(enrich, score)
	is := v.checkIntegration(enrich, classify, score)

	stages := StageQuality{
		Enrich:      es.final(),
		Classify:    cs.final(),
		Score:       ss.final(),
		Integration: is.final(),
	}
	mean, _ := stats.Mean(stats.Float64Data{
		float64(stages.Enrich), float64(stages.Classify),
		float64(stages.Score), float64(stages.Integration),
	})
	rounded, _ := stats.Round(mean, 0)
	quality := int(rounded)

	issues := make([]Issue, 0, len(es.issues)+len(cs.issues)+len(ss.issues)+len(is.issues))
	issues = append(issues, es.issues...)
	issues = append(issues, cs.issues...)
	issues = append(issues, ss.issues...)
	issues = append(issues, is.issues...)

	out := Verdict{
		Quality:    quality,
		Confidence: v.cfg.Tier(quality),
		Issues:     issues,
		Stages:     stages,
	}
	out.Valid = quality >= v.cfg.ValidThreshold && !out.HasHardIssues()
	return out
}

func (v *ComprehensiveValidator) checkEnrich(components []SubComponent) *sheet {
	s := newSheet(StageEnrich)
	if components == nil {
		s.zero(SeverityHard, "enrich output missing")
		return s
	}
	if len(components) == 0 {
		s.zero(SeveritySoft, "no components identified")
		return s
	}

	want := v.cfg.ExpectedComponents
	if n := len(components); n != want {
		dev := n - want
		if dev < 0 {
			dev = -dev
		}
		s.add(SeveritySoft, 20*dev, "expected %d components, got %d", want, n)
	}

	seen := make(map[string]bool, len(components))
	for i, c := range components {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			s.add(SeveritySoft, 10, "component %d has empty name", i+1)
			continue
		}
		if strings.TrimSpace(c.Function) == "" {
			s.add(SeveritySoft, 5, "component %d (%s) missing function", i+1, name)
		}
		if strings.TrimSpace(c.Subsystem) == "" {
			s.add(SeveritySoft, 5, "component %d (%s) missing subsystem", i+1, name)
		}
		lower := strings.ToLower(name)
		for _, g := range genericNames {
			if strings.Contains(lower, g) {
				s.add(SeveritySoft, 5, "component %d has generic name: %s", i+1, name)
				break
			}
		}
		key := normName(name)
		if seen[key] {
			s.add(SeveritySoft, 10, "duplicate component name: %s", name)
		}
		seen[key] = true
	}
	return s
}

func (v *ComprehensiveValidator) checkClassify(components []SubComponent, classes []Classification) *sheet {
	s := newSheet(StageClassify)
	if classes == nil {
		s.zero(SeverityHard, "classify output missing")
		return s
	}
	if len(classes) == 0 {
		s.zero(SeveritySoft, "no classifications provided")
		return s
	}

	names := make([]string, 0, len(classes))
	for i, c := range classes {
		names = append(names, c.Name)
		if !c.Category.Valid() {
			s.add(SeverityHard, 15, "classification %d (%s) has invalid category: %q", i+1, c.Name, c.Category)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			s.add(SeverityHard, 10, "classification %d (%s) confidence out of range: %.2f", i+1, c.Name, c.Confidence)
		} else if c.Confidence < v.cfg.LowConfidenceFloor {
			s.add(SeveritySoft, 5, "classification %d (%s) has low confidence: %.2f", i+1, c.Name, c.Confidence)
		}
	}

	if len(classes) > 1 {
		sameConf, sameCat := true, true
		for _, c := range classes[1:] {
			if round2(c.Confidence) != round2(classes[0].Confidence) {
				sameConf = false
			}
			if c.Category != classes[0].Category {
				sameCat = false
			}
		}
		if sameConf {
			s.add(SeveritySoft, 10, "all confidences identical: %.2f", classes[0].Confidence)
		}
		if sameCat {
			s.add(SeveritySoft, 0, "all components share classification %s", classes[0].Category)
		}
	}

	checkReferences(s, components, names)
	return s
}

func (v *ComprehensiveValidator) checkScore(components []SubComponent, scores []ScoreSet) *sheet {
	s := newSheet(StageScore)
	if scores == nil {
		s.zero(SeverityHard, "score output missing")
		return s
	}
	if len(scores) == 0 {
		s.zero(SeveritySoft, "no score sets provided")
		return s
	}

	names := make([]string, 0, len(scores))
	all := make(stats.Float64Data, 0, len(scores)*6)
	for i, sc := range scores {
		names = append(names, sc.Name)
		dims := sc.Dimensions()
		identical := true
		for _, d := range dims {
			if d.Value < 0 || d.Value > 100 {
				s.add(SeverityHard, 5, "score set %d (%s) %s out of range: %d", i+1, sc.Name, d.Name, d.Value)
			}
			if d.Value != dims[0].Value {
				identical = false
			}
			all = append(all, float64(d.Value))
		}
		if identical {
			s.add(SeveritySoft, 15, "score set %d (%s) has all dimensions identical: %d", i+1, sc.Name, dims[0].Value)
		}
	}

	if len(scores) > 1 {
		first := scores[0].Dimensions()
		for di, d := range first {
			same := true
			for _, sc := range scores[1:] {
				if sc.Dimensions()[di].Value != d.Value {
					same = false
					break
				}
			}
			if same {
				s.add(SeveritySoft, 5, "all components share the same %s score: %d", d.Name, d.Value)
			}
		}
	}

	if avg, err := stats.Mean(all); err == nil {
		for i, sc := range scores {
			for _, d := range sc.Dimensions() {
				switch {
				case d.Value < 20 && avg > 70:
					s.add(SeveritySoft, 0, "score set %d (%s) %s unusually low: %d (avg %.0f)", i+1, sc.Name, d.Name, d.Value, avg)
				case d.Value > 95 && avg < 50:
					s.add(SeveritySoft, 0, "score set %d (%s) %s unusually high: %d (avg %.0f)", i+1, sc.Name, d.Name, d.Value, avg)
				}
			}
		}
	}

	checkReferences(s, components, names)
	return s
}

// checkReferences flags orphan, duplicate and uncovered names against the enrich output.
// Skipped when enrich is missing; that is already a hard issue.
func checkReferences(s *sheet, components []SubComponent, names []string) {
	if components == nil {
		return
	}
	known := make(map[string]bool, len(components))
	for _, c := range components {
		known[normName(c.Name)] = true
	}
	covered := make(map[string]bool, len(names))
	for _, n := range names {
		key := normName(n)
		if !known[key] {
			s.add(SeverityHard, 15, "%q does not match any enriched component", n)
			continue
		}
		if covered[key] {
			s.add(SeveritySoft, 5, "duplicate entry for %q", n)
		}
		covered[key] = true
	}
	for _, c := range components {
		key := normName(c.Name)
		if key != "" && !covered[key] {
			s.add(SeveritySoft, 10, "component %q not covered", c.Name)
		}
	}
}

func (v *ComprehensiveValidator) checkIntegration(components []SubComponent, classes []Classification, scores []ScoreSet) *sheet {
	s := newSheet(StageIntegration)
	if components == nil || classes == nil || scores == nil {
		s.zero(SeveritySoft, "integration not checked: one or more stages missing")
		return s
	}
	if len(components) != len(classes) || len(components) != len(scores) {
		s.add(SeveritySoft, 30, "component count mismatch: enrich=%d, classify=%d, score=%d",
			len(components), len(classes), len(scores))
	}
	return s
}

func normName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func round2(f float64) float64 {
	r, _ := stats.Round(f, 2)
	return r
}
