package scales

import (
	"time"

	"github.com/google/uuid"
)

// ScoringStrategy identifies how a scale's item responses are aggregated.
type ScoringStrategy string

const (
	StrategySum         ScoringStrategy = "sum"
	StrategyMean        ScoringStrategy = "mean"
	StrategyWeighted    ScoringStrategy = "weighted"
	StrategyCategorical ScoringStrategy = "categorical"
	StrategyProfile     ScoringStrategy = "profile"
)

// ValidStrategies enumerates the accepted scoring strategies.
var ValidStrategies = map[ScoringStrategy]bool{
	StrategySum: true, StrategyMean: true, StrategyWeighted: true,
	StrategyCategorical: true, StrategyProfile: true,
}

// ScaleItem is a single question of an instrument.
type ScaleItem struct {
	Number        int     `json:"number"`
	SectionID     string  `json:"section_id,omitempty"`
	Text          string  `json:"text"`
	MaxValue      float64 `json:"max_value"`
	Weight        float64 `json:"weight,omitempty"`
	ReverseScored bool    `json:"reverse_scored,omitempty"`
}

// NormRow is one row of a normative table: reference mean and standard
// deviation for an age range and gender ("" matches any gender).
type NormRow struct {
	AgeMin int     `json:"age_min"`
	AgeMax int     `json:"age_max"`
	Gender string  `json:"gender,omitempty"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
}

// Subscale is an independently scored dimension of a scale.
type Subscale struct {
	Name        string    `json:"name"`
	ItemNumbers []int     `json:"item_numbers"`
	Norms       []NormRow `json:"norms,omitempty"`
	// Cutoffs override the scale-level bands for this dimension.
	Cutoffs []CutoffBand `json:"cutoffs,omitempty"`
	// Reliability is the internal-consistency coefficient (Cronbach's alpha)
	// used for the standard error of measurement. Nil when unknown.
	Reliability *float64 `json:"reliability,omitempty"`
}

// NormFor returns the normative row matching age and gender, or nil. A row
// with empty gender matches any gender; an exact gender match wins over it.
func (s *Subscale) NormFor(age int, gender string) *NormRow {
	var anyGender *NormRow
	for i := range s.Norms {
		n := &s.Norms[i]
		if age < n.AgeMin || age > n.AgeMax {
			continue
		}
		if n.Gender == gender && gender != "" {
			return n
		}
		if n.Gender == "" && anyGender == nil {
			anyGender = n
		}
	}
	return anyGender
}

// CutoffBand is a threshold-defined severity category. Bands are stored in
// ascending severity order; Threshold is the lowest score in the band.
type CutoffBand struct {
	Label     string  `json:"label"`
	Threshold float64 `json:"threshold"`
}

// CategoryRule maps a response pattern to a discrete bucket for categorical
// scoring. A rule matches when every entry of MinPerItem is satisfied and,
// if MinPositive is set, at least that many of CountItems score at or above
// CountThreshold. Rules are evaluated in order; the first match wins.
type CategoryRule struct {
	Bucket         string          `json:"bucket"`
	MinPerItem     map[int]float64 `json:"min_per_item,omitempty"`
	MinPositive    int             `json:"min_positive,omitempty"`
	CountThreshold float64         `json:"count_threshold,omitempty"`
	CountItems     []int           `json:"count_items,omitempty"`
}

// CategoricalSpec describes the pattern-to-bucket lookup of a categorical
// scale, with a fallback bucket when no rule matches.
type CategoricalSpec struct {
	Rules         []CategoryRule `json:"rules"`
	DefaultBucket string         `json:"default_bucket"`
}

// ScaleDefinition is a published, versioned instrument definition. Published
// definitions are immutable: revisions insert a new version instead of
// editing in place.
type ScaleDefinition struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	Abbreviation       string           `db:"abbreviation" json:"abbreviation"`
	Name               string           `db:"name" json:"name"`
	Category           string           `db:"category" json:"category"`
	Version            int              `db:"version" json:"version"`
	Language           string           `db:"language" json:"language"`
	AdministrationMode string           `db:"administration_mode" json:"administration_mode"`
	TargetAgeMin       int              `db:"target_age_min" json:"target_age_min"`
	TargetAgeMax       int              `db:"target_age_max" json:"target_age_max"`
	Strategy           ScoringStrategy  `db:"strategy" json:"strategy"`
	Items              []ScaleItem      `db:"items" json:"items"`
	Subscales          []Subscale       `db:"subscales" json:"subscales,omitempty"`
	Cutoffs            []CutoffBand     `db:"cutoffs" json:"cutoffs,omitempty"`
	Categories         *CategoricalSpec `db:"categories" json:"categories,omitempty"`
	Active             bool             `db:"active" json:"active"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}

// ItemCount returns the number of items in the instrument.
func (s *ScaleDefinition) ItemCount() int {
	return len(s.Items)
}

// Item returns the item with the given number, or nil.
func (s *ScaleDefinition) Item(number int) *ScaleItem {
	for i := range s.Items {
		if s.Items[i].Number == number {
			return &s.Items[i]
		}
	}
	return nil
}

// EligibleForAge reports whether a patient of the given age is within the
// instrument's target range. A zero TargetAgeMax means no upper bound.
func (s *ScaleDefinition) EligibleForAge(age int) bool {
	if age < s.TargetAgeMin {
		return false
	}
	if s.TargetAgeMax > 0 && age > s.TargetAgeMax {
		return false
	}
	return true
}
