// Package scoring turns a completed set of item responses into scored,
// classified and interpreted results. It is pure: no storage, no transport,
// and the same inputs always produce the same outputs.
package scoring

import (
	"math"
	"sort"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
)

// Demographics carries the patient attributes used for norm selection.
type Demographics struct {
	Age    int
	Gender string
}

// ConfidenceInterval is the 95% interval around a raw score.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Result is the scored outcome for one dimension of an instrument.
// Standardized fields are nil when the definition carries no norms for the
// patient's demographic group.
type Result struct {
	Subscale           string              `json:"subscale"`
	RawScore           *float64            `json:"raw_score,omitempty"`
	ZScore             *float64            `json:"z_score,omitempty"`
	TScore             *float64            `json:"t_score,omitempty"`
	Percentile         *int                `json:"percentile,omitempty"`
	Classification     string              `json:"classification,omitempty"`
	ConfidenceInterval *ConfidenceInterval `json:"confidence_interval,omitempty"`
	Interpretation     string              `json:"interpretation,omitempty"`
	Recommendations    string              `json:"recommendations,omitempty"`
}

// missingTolerance is the largest fraction of unanswered items a mean or
// weighted subscale may carry and still be scored. The boundary is inclusive.
const missingTolerance = 0.20

// Score computes the results for a scale given the patient's responses,
// keyed by item number. Reverse-scored items are flipped before any
// aggregation. The call either succeeds for every dimension or fails as a
// whole; partial result sets are never returned.
func Score(def *scales.ScaleDefinition, responses map[int]float64, demo Demographics) ([]Result, error) {
	adjusted, err := adjust(def, responses)
	if err != nil {
		return nil, err
	}

	if def.Strategy == scales.StrategyCategorical {
		r, err := scoreCategorical(def, adjusted)
		if err != nil {
			return nil, err
		}
		return []Result{r}, nil
	}

	subs := def.Subscales
	if len(subs) == 0 {
		all := make([]int, 0, len(def.Items))
		for _, it := range def.Items {
			all = append(all, it.Number)
		}
		sort.Ints(all)
		subs = []scales.Subscale{{Name: "total", ItemNumbers: all}}
	}

	results := make([]Result, 0, len(subs))
	for i := range subs {
		r, err := scoreSubscale(def, &subs[i], adjusted, demo)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// adjust validates responses against the definition and applies reverse
// scoring. Unanswered items are simply absent from the returned map.
func adjust(def *scales.ScaleDefinition, responses map[int]float64) (map[int]float64, error) {
	adjusted := make(map[int]float64, len(responses))
	for number, value := range responses {
		item := def.Item(number)
		if item == nil {
			return nil, apperr.NewValidation("scale %s has no item %d", def.Abbreviation, number)
		}
		if value < 0 || value > item.MaxValue {
			return nil, apperr.NewValidation("item %d: value %g outside 0..%g", number, value, item.MaxValue)
		}
		if item.ReverseScored {
			value = item.MaxValue - value
		}
		adjusted[number] = value
	}
	return adjusted, nil
}

func scoreSubscale(def *scales.ScaleDefinition, sub *scales.Subscale, adjusted map[int]float64, demo Demographics) (Result, error) {
	var (
		present []float64
		weights []float64
		missing int
	)
	for _, n := range sub.ItemNumbers {
		v, ok := adjusted[n]
		if !ok {
			missing++
			continue
		}
		present = append(present, v)
		if it := def.Item(n); it != nil {
			weights = append(weights, it.Weight)
		}
	}

	var raw float64
	switch def.Strategy {
	case scales.StrategySum, scales.StrategyProfile:
		for _, v := range present {
			raw += v
		}
	case scales.StrategyMean:
		if err := checkMissing(sub, missing); err != nil {
			return Result{}, err
		}
		for _, v := range present {
			raw += v
		}
		raw /= float64(len(present))
	case scales.StrategyWeighted:
		if err := checkMissing(sub, missing); err != nil {
			return Result{}, err
		}
		for i, v := range present {
			raw += v * weights[i]
		}
	default:
		return Result{}, apperr.NewValidation("unknown scoring strategy %q", def.Strategy)
	}

	res := Result{Subscale: sub.Name, RawScore: &raw}

	norm := sub.NormFor(demo.Age, demo.Gender)
	if norm != nil {
		z := (raw - norm.Mean) / norm.SD
		tScore := 50 + 10*z
		pct := percentileOf(z)
		res.ZScore = &z
		res.TScore = &tScore
		res.Percentile = &pct
	}
	if sub.Reliability != nil && norm != nil {
		sem := norm.SD * math.Sqrt(1-*sub.Reliability)
		res.ConfidenceInterval = &ConfidenceInterval{
			Lower: raw - 1.96*sem,
			Upper: raw + 1.96*sem,
		}
	}

	// Classification uses the standardized score when norms exist, the raw
	// score otherwise. Subscale bands take precedence over scale bands.
	basis := raw
	if res.TScore != nil {
		basis = *res.TScore
	}
	bands := sub.Cutoffs
	if len(bands) == 0 {
		bands = def.Cutoffs
	}
	res.Classification = classify(basis, bands)
	res.Interpretation, res.Recommendations = interpret(def, &res)
	return res, nil
}

func checkMissing(sub *scales.Subscale, missing int) error {
	if len(sub.ItemNumbers) == 0 {
		return apperr.NewValidation("subscale %q has no items", sub.Name)
	}
	frac := float64(missing) / float64(len(sub.ItemNumbers))
	if frac > missingTolerance {
		return &apperr.InsufficientDataError{Subscale: sub.Name, MissingFraction: frac}
	}
	return nil
}

func scoreCategorical(def *scales.ScaleDefinition, adjusted map[int]float64) (Result, error) {
	if len(adjusted) < def.ItemCount() {
		frac := 1 - float64(len(adjusted))/float64(def.ItemCount())
		return Result{}, &apperr.InsufficientDataError{Subscale: "total", MissingFraction: frac}
	}
	bucket := def.Categories.DefaultBucket
	for _, rule := range def.Categories.Rules {
		if matchRule(rule, adjusted) {
			bucket = rule.Bucket
			break
		}
	}
	res := Result{Subscale: "total", Classification: bucket}
	res.Interpretation, res.Recommendations = interpret(def, &res)
	return res, nil
}

func matchRule(rule scales.CategoryRule, adjusted map[int]float64) bool {
	for item, min := range rule.MinPerItem {
		if adjusted[item] < min {
			return false
		}
	}
	if rule.MinPositive > 0 {
		count := 0
		for _, n := range rule.CountItems {
			if adjusted[n] >= rule.CountThreshold {
				count++
			}
		}
		if count < rule.MinPositive {
			return false
		}
	}
	return true
}

// classify returns the label of the most severe band whose threshold does
// not exceed the score. Bands sharing a threshold resolve to the later, more
// severe one.
func classify(score float64, bands []scales.CutoffBand) string {
	label := ""
	for _, band := range bands {
		if score >= band.Threshold {
			label = band.Label
		}
	}
	return label
}

// percentileOf maps a z-score to a percentile through the standard normal
// CDF, rounded and clamped to [0,100].
func percentileOf(z float64) int {
	phi := 0.5 * (1 + math.Erf(z/math.Sqrt2))
	pct := int(math.Round(phi * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}
