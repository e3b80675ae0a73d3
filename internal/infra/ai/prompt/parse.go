package prompt

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

const (
	maxTextComponents = 12
	defaultConfidence = 0.75
	maxConfidence     = 0.99
)

var (
	numberingRe = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)
	decimalRe   = regexp.MustCompile(`\b[01]\.\d+\b`)
	percentRe   = regexp.MustCompile(`(\d{1,3})\s*%`)
	integerRe   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

var dimensionKeys = [6][]string{
	{"tech", "technical_compatibility", "technical"},
	{"manufacturing", "manufacturing_feasibility"},
	{"supply_chain", "supply_chain_concentration", "supplychain"},
	{"demand", "demand_stability"},
	{"value", "value_added"},
	{"regulatory", "regulatory_exposure"},
}

// ParseComponents reads enrich output: a JSON object or array first, then a
// numbered or bulleted list. Without list markers only "name: function"
// lines count, so prose around the answer is ignored. Nothing usable yields
// ErrMalformed.
func ParseComponents(raw string) ([]domain.SubComponent, error) {
	var out []domain.SubComponent
	if v, ok := decodeJSON(raw); ok {
		for _, m := range objects(v, "components", "sub_components", "items") {
			name := field(m, "name", "component")
			if name == "" {
				continue
			}
			out = append(out, domain.SubComponent{
				Name:      name,
				Function:  field(m, "function", "description"),
				Subsystem: field(m, "subsystem"),
			})
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	lines := scanLines(raw)
	listed := slices.ContainsFunc(lines, func(l textLine) bool { return l.listed })
	for _, l := range lines {
		if listed && !l.listed {
			continue
		}
		name, function := splitLabel(l.text)
		if !listed && function == "" {
			continue
		}
		out = append(out, domain.SubComponent{Name: name, Function: function})
		if len(out) == maxTextComponents {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no components in response: %w", domain.ErrMalformed)
	}
	return out, nil
}

// ParseClassifications reads classify output. names is the list that was asked
// about; it lets the text fallback attribute lines to components.
func ParseClassifications(raw string, names []string) ([]domain.Classification, error) {
	var out []domain.Classification
	if v, ok := decodeJSON(raw); ok {
		for _, m := range objects(v, "classifications", "components", "items") {
			name := field(m, "name", "component")
			if name == "" && len(names) == 1 {
				name = names[0]
			}
			cat := field(m, "category", "classification")
			if name == "" || cat == "" {
				continue
			}
			conf, ok := number(m, "confidence", "similarity", "similarity_score")
			if !ok {
				conf = defaultConfidence
			}
			out = append(out, domain.Classification{
				Name:       name,
				Category:   NormalizeCategory(cat),
				Confidence: clampConfidence(conf),
				Reasoning:  field(m, "reasoning"),
			})
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	lines := textLines(raw)
	for _, n := range names {
		for _, line := range lines {
			if !containsFold(line, n) {
				continue
			}
			if cat, ok := categoryFromText(line); ok {
				out = append(out, domain.Classification{Name: n, Category: cat, Confidence: confidenceFromText(line)})
				break
			}
		}
	}
	if len(out) == 0 && len(names) == 1 {
		if cat, ok := categoryFromText(raw); ok {
			out = append(out, domain.Classification{Name: names[0], Category: cat, Confidence: confidenceFromText(raw)})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no classifications in response: %w", domain.ErrMalformed)
	}
	return out, nil
}

// ParseScores reads score output. Values are rounded and clamped into 0..100.
// A JSON row missing any of the six dimensions makes the whole response
// malformed; missing scores are never filled in.
func ParseScores(raw string, names []string) ([]domain.ScoreSet, error) {
	var out []domain.ScoreSet
	if v, ok := decodeJSON(raw); ok {
		for _, m := range objects(v, "scores", "components", "items") {
			name := field(m, "name", "component")
			if name == "" && len(names) == 1 {
				name = names[0]
			}
			if name == "" {
				continue
			}
			src := m
			if sub, ok := m["scores"].(map[string]any); ok {
				src = sub
			}
			var vals [6]int
			got := 0
			for i, keys := range dimensionKeys {
				if f, ok := number(src, keys...); ok {
					vals[i] = clampScore(f)
					got++
				}
			}
			if got < len(dimensionKeys) {
				return nil, fmt.Errorf("score row %q has %d of %d dimensions: %w", name, got, len(dimensionKeys), domain.ErrMalformed)
			}
			out = append(out, scoreSet(name, vals))
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	lines := textLines(raw)
	for _, n := range names {
		for _, line := range lines {
			_, end, ok := foldSpan(line, n)
			if !ok {
				continue
			}
			rest := line[end:]
			nums := integerRe.FindAllString(rest, -1)
			if len(nums) < 6 {
				continue
			}
			var vals [6]int
			for i := range vals {
				f, _ := strconv.ParseFloat(nums[i], 64)
				vals[i] = clampScore(f)
			}
			out = append(out, scoreSet(n, vals))
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scores in response: %w", domain.ErrMalformed)
	}
	return out, nil
}

// NormalizeCategory maps common spellings onto the three categories. Unknown
// values are returned upper-cased so the validator can flag them.
func NormalizeCategory(s string) domain.Category {
	u := strings.ToUpper(strings.TrimSpace(s))
	u = strings.NewReplacer(" ", "_", "-", "_").Replace(u)
	switch u {
	case "ICE", "ICE_ONLY", "COMBUSTION", "COMBUSTION_ONLY":
		return domain.CategoryICEOnly
	case "EV", "EV_ONLY", "BEV", "BEV_ONLY", "ELECTRIC", "ELECTRIC_ONLY":
		return domain.CategoryEVOnly
	case "SHARED", "BOTH", "COMMON":
		return domain.CategoryShared
	}
	return domain.Category(u)
}

func scoreSet(name string, v [6]int) domain.ScoreSet {
	return domain.ScoreSet{
		Name:          name,
		Tech:          v[0],
		Manufacturing: v[1],
		SupplyChain:   v[2],
		Demand:        v[3],
		Value:         v[4],
		Regulatory:    v[5],
	}
}

func decodeJSON(raw string) (any, bool) {
	s := stripFences(raw)
	var v any
	if json.Unmarshal([]byte(s), &v) == nil {
		return v, true
	}
	// cari blok JSON di tengah teks
	start := strings.IndexAny(s, "[{")
	end := strings.LastIndexAny(s, "]}")
	if start < 0 || end <= start {
		return nil, false
	}
	if json.Unmarshal([]byte(s[start:end+1]), &v) == nil {
		return v, true
	}
	return nil, false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// objects pulls the list of JSON objects out of an array, a wrapper object
// keyed by one of keys, or a single bare object.
func objects(v any, keys ...string) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, k := range keys {
			if arr, ok := t[k].([]any); ok {
				return objects(arr)
			}
		}
		if len(t) > 0 {
			return []map[string]any{t}
		}
	}
	return nil
}

func field(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func number(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			s := strings.TrimSpace(v)
			pct := strings.HasSuffix(s, "%")
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
			if err != nil {
				continue
			}
			if pct {
				f /= 100
			}
			return f, true
		}
	}
	return 0, false
}

type textLine struct {
	text string
	// listed is set when the line carried a number or bullet marker
	listed bool
}

func scanLines(raw string) []textLine {
	var out []textLine
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 || strings.HasPrefix(line, "```") || strings.ContainsAny(line[:1], `{}[]"`) {
			continue
		}
		listed := numberingRe.MatchString(line)
		line = strings.TrimSpace(numberingRe.ReplaceAllString(line, ""))
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if len(line) < 3 || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, textLine{text: line, listed: listed})
	}
	return out
}

func textLines(raw string) []string {
	lines := scanLines(raw)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.text)
	}
	return out
}

// splitLabel turns "Brake caliper: clamps the pads" into name and function.
func splitLabel(line string) (string, string) {
	for _, sep := range []string{": ", " - "} {
		if i := strings.Index(line, sep); i > 0 {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(sep):])
		}
	}
	return line, ""
}

func categoryFromText(text string) (domain.Category, bool) {
	u := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToUpper(text))
	switch {
	case strings.Contains(u, "ICE_ONLY"):
		return domain.CategoryICEOnly, true
	case strings.Contains(u, "EV_ONLY"):
		return domain.CategoryEVOnly, true
	case strings.Contains(u, "SHARED"), strings.Contains(u, "BOTH"):
		return domain.CategoryShared, true
	}
	return "", false
}

func confidenceFromText(text string) float64 {
	if m := percentRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return clampConfidence(n / 100)
	}
	if m := decimalRe.FindString(text); m != "" {
		f, _ := strconv.ParseFloat(m, 64)
		return clampConfidence(f)
	}
	return defaultConfidence
}

func clampConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	v = math.Max(0, math.Min(maxConfidence, v))
	return math.Round(v*100) / 100
}

func clampScore(f float64) int {
	return int(math.Max(0, math.Min(100, math.Round(f))))
}

func containsFold(s, sub string) bool {
	_, _, ok := foldSpan(s, sub)
	return ok
}

// foldSpan finds sub in s ignoring case. The offsets index s itself, which
// lower-casing both sides would not guarantee for non-ASCII text.
func foldSpan(s, sub string) (start, end int, ok bool) {
	loc := regexp.MustCompile("(?i)" + regexp.QuoteMeta(sub)).FindStringIndex(s)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}
