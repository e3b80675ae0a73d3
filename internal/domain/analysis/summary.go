package analysis

import "github.com/montanaflynn/stats"

// ComponentSummary merges the three stage outputs for one component.
type ComponentSummary struct {
	Name       string    `json:"name"`
	Subsystem  string    `json:"subsystem,omitempty"`
	Category   Category  `json:"category,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Scores     *ScoreSet `json:"scores,omitempty"`
	TFS        *int      `json:"tfs_score,omitempty"`
	Timeline   string    `json:"timeline,omitempty"`
}

// Summary gives the at-a-glance view of one run.
type Summary struct {
	TotalComponents int                `json:"total_components"`
	Classifications map[Category]int   `json:"classifications"`
	AvgConfidence   float64            `json:"avg_confidence"`
	QualityByStage  StageQuality       `json:"quality_by_stage"`
	IssuesFound     int                `json:"issues_found"`
	ErrorsFound     int                `json:"errors_found"`
	Timeouts        int                `json:"timeouts"`
	Status          string             `json:"status"`
	Components      []ComponentSummary `json:"components"`
}

// TFS is the transition feasibility score: the integer mean of the six dimensions.
func TFS(s ScoreSet) int {
	sum := 0
	for _, d := range s.Dimensions() {
		sum += d.Value
	}
	return sum / 6
}

// Timeline buckets a TFS into an expected transition window.
func Timeline(tfs int) string {
	switch {
	case tfs >= 75:
		return "1-2 years"
	case tfs >= 60:
		return "2-3 years"
	case tfs >= 40:
		return "3-5 years"
	default:
		return "5+ years"
	}
}

// Summarize builds the Summary of r. Call after Stages, Validation, Errors and Failures are set.
func Summarize(r *Result) Summary {
	sum := Summary{
		Classifications: map[Category]int{
			CategoryShared:  0,
			CategoryICEOnly: 0,
			CategoryEVOnly:  0,
		},
		QualityByStage: r.Validation.Stages,
		IssuesFound:    len(r.Validation.Issues),
		ErrorsFound:    len(r.Errors),
		Status:         "INVALID",
	}
	if r.Valid {
		sum.Status = "VALID"
	}
	for _, f := range r.Failures {
		if f.Kind == KindTimeout {
			sum.Timeouts++
		}
	}

	classes := r.Stages.Classify.Output
	confs := make(stats.Float64Data, 0, len(classes))
	byName := make(map[string]Classification, len(classes))
	for _, c := range classes {
		if c.Category.Valid() {
			sum.Classifications[c.Category]++
		}
		confs = append(confs, c.Confidence)
		byName[normName(c.Name)] = c
	}
	if avg, err := stats.Mean(confs); err == nil {
		sum.AvgConfidence, _ = stats.Round(avg, 2)
	}

	scores := make(map[string]ScoreSet, len(r.Stages.Score.Output))
	for _, s := range r.Stages.Score.Output {
		scores[normName(s.Name)] = s
	}

	comps := r.Stages.Enrich.Output
	sum.TotalComponents = len(comps)
	sum.Components = make([]ComponentSummary, 0, len(comps))
	for _, c := range comps {
		row := ComponentSummary{Name: c.Name, Subsystem: c.Subsystem}
		key := normName(c.Name)
		if cl, ok := byName[key]; ok {
			conf := cl.Confidence
			row.Category = cl.Category
			row.Confidence = &conf
		}
		if sc, ok := scores[key]; ok {
			sc := sc
			tfs := TFS(sc)
			row.Scores = &sc
			row.TFS = &tfs
			row.Timeline = Timeline(tfs)
		}
		sum.Components = append(sum.Components, row)
	}
	return sum
}
