package scoring

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
)

func sumScale(n int, max float64) *scales.ScaleDefinition {
	items := make([]scales.ScaleItem, n)
	for i := range items {
		items[i] = scales.ScaleItem{Number: i + 1, Text: "item", MaxValue: max}
	}
	return &scales.ScaleDefinition{
		Abbreviation: "SUM-T",
		Strategy:     scales.StrategySum,
		Items:        items,
		Cutoffs: []scales.CutoffBand{
			{Label: "minimal", Threshold: 0},
			{Label: "mild", Threshold: 5},
			{Label: "moderate", Threshold: 10},
			{Label: "severe", Threshold: 15},
		},
	}
}

func TestSumScoring(t *testing.T) {
	def := sumScale(4, 5)
	results, err := Score(def, map[int]float64{1: 2, 2: 3, 3: 1, 4: 4}, Demographics{Age: 30})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.RawScore == nil || *r.RawScore != 10 {
		t.Errorf("expected raw 10, got %v", r.RawScore)
	}
	if r.Classification != "moderate" {
		t.Errorf("expected moderate, got %q", r.Classification)
	}
	if r.ZScore != nil || r.TScore != nil || r.Percentile != nil {
		t.Error("expected no standardized scores without norms")
	}
	if r.ConfidenceInterval != nil {
		t.Error("expected nil confidence interval without reliability")
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	def := sumScale(4, 5)
	responses := map[int]float64{1: 2, 2: 3, 3: 1, 4: 4}
	first, err := Score(def, responses, Demographics{Age: 30})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	second, err := Score(def, responses, Demographics{Age: 30})
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same inputs must produce identical results")
	}
}

func TestReverseScoredItems(t *testing.T) {
	def := sumScale(2, 3)
	def.Items[1].ReverseScored = true
	results, err := Score(def, map[int]float64{1: 1, 2: 0}, Demographics{})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Item 2 answered 0 on a 0..3 reversed item contributes 3.
	if *results[0].RawScore != 4 {
		t.Errorf("expected raw 4, got %g", *results[0].RawScore)
	}
}

func TestResponseValidation(t *testing.T) {
	def := sumScale(2, 3)
	var verr *apperr.ValidationError

	_, err := Score(def, map[int]float64{5: 1}, Demographics{})
	if !errors.As(err, &verr) {
		t.Errorf("unknown item: expected ValidationError, got %v", err)
	}
	_, err = Score(def, map[int]float64{1: 4}, Demographics{})
	if !errors.As(err, &verr) {
		t.Errorf("value over max: expected ValidationError, got %v", err)
	}
	_, err = Score(def, map[int]float64{1: -1}, Demographics{})
	if !errors.As(err, &verr) {
		t.Errorf("negative value: expected ValidationError, got %v", err)
	}
}

func meanScale(n int) *scales.ScaleDefinition {
	def := sumScale(n, 4)
	def.Strategy = scales.StrategyMean
	def.Cutoffs = nil
	return def
}

func TestMeanMissingTolerance(t *testing.T) {
	def := meanScale(5)

	// One of five missing is exactly the 20% boundary: still scorable.
	results, err := Score(def, map[int]float64{1: 2, 2: 2, 3: 2, 4: 4}, Demographics{})
	if err != nil {
		t.Fatalf("expected boundary to be scorable: %v", err)
	}
	if got := *results[0].RawScore; got != 2.5 {
		t.Errorf("expected mean 2.5 over answered items, got %g", got)
	}

	// Two of five missing exceeds the tolerance.
	_, err = Score(def, map[int]float64{1: 2, 2: 2, 3: 2}, Demographics{})
	var insuf *apperr.InsufficientDataError
	if !errors.As(err, &insuf) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insuf.Subscale != "total" {
		t.Errorf("expected subscale total, got %q", insuf.Subscale)
	}
	if math.Abs(insuf.MissingFraction-0.4) > 1e-9 {
		t.Errorf("expected missing fraction 0.4, got %g", insuf.MissingFraction)
	}
}

func TestWeightedScoring(t *testing.T) {
	def := sumScale(3, 10)
	def.Strategy = scales.StrategyWeighted
	def.Cutoffs = nil
	def.Items[0].Weight = 1
	def.Items[1].Weight = 2
	def.Items[2].Weight = 0.5

	results, err := Score(def, map[int]float64{1: 4, 2: 3, 3: 2}, Demographics{})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got := *results[0].RawScore; got != 11 {
		t.Errorf("expected weighted total 11, got %g", got)
	}
}

func TestNormalizedScores(t *testing.T) {
	alpha := 0.84
	def := sumScale(4, 10)
	def.Cutoffs = []scales.CutoffBand{
		{Label: "average", Threshold: 0},
		{Label: "elevated", Threshold: 60},
	}
	def.Subscales = []scales.Subscale{{
		Name:        "total",
		ItemNumbers: []int{1, 2, 3, 4},
		Reliability: &alpha,
		Norms: []scales.NormRow{
			{AgeMin: 18, AgeMax: 65, Mean: 10, SD: 4},
		},
	}}

	results, err := Score(def, map[int]float64{1: 5, 2: 5, 3: 4, 4: 4}, Demographics{Age: 30})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	r := results[0]
	if *r.RawScore != 18 {
		t.Fatalf("expected raw 18, got %g", *r.RawScore)
	}
	if math.Abs(*r.ZScore-2.0) > 1e-9 {
		t.Errorf("expected z 2.0, got %g", *r.ZScore)
	}
	if math.Abs(*r.TScore-70) > 1e-9 {
		t.Errorf("expected t 70, got %g", *r.TScore)
	}
	if *r.Percentile != 98 {
		t.Errorf("expected percentile 98, got %d", *r.Percentile)
	}
	if r.Classification != "elevated" {
		t.Errorf("expected classification on t-score, got %q", r.Classification)
	}
	if r.ConfidenceInterval == nil {
		t.Fatal("expected confidence interval with reliability and norms")
	}
	sem := 4 * math.Sqrt(1-alpha)
	if math.Abs(r.ConfidenceInterval.Lower-(18-1.96*sem)) > 1e-9 {
		t.Errorf("unexpected CI lower %g", r.ConfidenceInterval.Lower)
	}
	if math.Abs(r.ConfidenceInterval.Upper-(18+1.96*sem)) > 1e-9 {
		t.Errorf("unexpected CI upper %g", r.ConfidenceInterval.Upper)
	}
}

func TestPercentileClamping(t *testing.T) {
	if percentileOf(-10) != 0 {
		t.Error("extreme negative z must clamp to 0")
	}
	if percentileOf(10) != 100 {
		t.Error("extreme positive z must clamp to 100")
	}
	if percentileOf(0) != 50 {
		t.Errorf("z 0 must map to the 50th percentile, got %d", percentileOf(0))
	}
}

func TestClassifyTiesResolveToMoreSevere(t *testing.T) {
	bands := []scales.CutoffBand{
		{Label: "low", Threshold: 0},
		{Label: "elevated", Threshold: 10},
		{Label: "clinical", Threshold: 10},
	}
	if got := classify(10, bands); got != "clinical" {
		t.Errorf("expected tie to resolve to clinical, got %q", got)
	}
	if got := classify(9.99, bands); got != "low" {
		t.Errorf("expected low below threshold, got %q", got)
	}
}

func TestCategoricalScoring(t *testing.T) {
	def := scales.BuiltinScales()[4] // MDQ
	if def.Abbreviation != "MDQ" {
		t.Fatalf("catalog order changed, got %s", def.Abbreviation)
	}

	responses := make(map[int]float64, 15)
	for i := 1; i <= 15; i++ {
		responses[i] = 0
	}
	for i := 1; i <= 8; i++ {
		responses[i] = 1
	}
	responses[14] = 1
	responses[15] = 2

	results, err := Score(def, responses, Demographics{Age: 40})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("categorical scales emit exactly one result, got %d", len(results))
	}
	if results[0].Classification != "positive_screen" {
		t.Errorf("expected positive_screen, got %q", results[0].Classification)
	}
	if results[0].RawScore != nil {
		t.Error("categorical results carry no numeric aggregate")
	}

	// Without the impairment criterion the screen is negative.
	responses[15] = 1
	results, err = Score(def, responses, Demographics{Age: 40})
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if results[0].Classification != "negative_screen" {
		t.Errorf("expected negative_screen, got %q", results[0].Classification)
	}

	// Categorical patterns need every item answered.
	delete(responses, 7)
	_, err = Score(def, responses, Demographics{Age: 40})
	var insuf *apperr.InsufficientDataError
	if !errors.As(err, &insuf) {
		t.Errorf("expected InsufficientDataError, got %v", err)
	}
}

func TestProfileEmitsOneResultPerSubscale(t *testing.T) {
	var def *scales.ScaleDefinition
	for _, d := range scales.BuiltinScales() {
		if d.Abbreviation == "SDQ" {
			def = d
		}
	}
	if def == nil {
		t.Fatal("SDQ missing from catalog")
	}

	responses := make(map[int]float64, 25)
	for i := 1; i <= 25; i++ {
		responses[i] = 1
	}
	results, err := Score(def, responses, Demographics{Age: 9})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results) != len(def.Subscales) {
		t.Fatalf("expected %d results, got %d", len(def.Subscales), len(results))
	}
	for _, r := range results {
		if r.RawScore == nil {
			t.Errorf("subscale %s: missing raw score", r.Subscale)
		}
		if r.Classification == "" {
			t.Errorf("subscale %s: missing classification", r.Subscale)
		}
	}
}

func TestInterpretationTemplates(t *testing.T) {
	def := sumScale(4, 5)
	results, err := Score(def, map[int]float64{1: 2, 2: 3, 3: 1, 4: 4}, Demographics{})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	r := results[0]
	if r.Interpretation == "" || r.Recommendations == "" {
		t.Fatal("expected interpretation and recommendations")
	}
	for _, text := range []string{r.Interpretation, r.Recommendations} {
		if containsPlaceholder(text) {
			t.Errorf("unrendered placeholder in %q", text)
		}
	}
}

func containsPlaceholder(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}
