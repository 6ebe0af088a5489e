package store

// FilterKind is a gate predicate evaluated before the decision rules
// (spec.md §3, §4.5 step 1).
type FilterKind string

const (
	FilterTotalUsers      FilterKind = "TotalUsers"
	FilterDelaySeconds    FilterKind = "DelaySeconds"
	FilterDelayPercentage FilterKind = "DelayPercentage"
)

// Filter is one gate predicate; Value is interpreted according to Kind.
type Filter struct {
	Kind  FilterKind `json:"kind" yaml:"kind"`
	Value float64    `json:"value" yaml:"value"`
}

// Operator compares a probability against a DetailedOdds threshold.
type Operator string

const (
	OperatorLE Operator = "LE"
	OperatorGE Operator = "GE"
)

// PointsSpec sizes a bet as a percentage of balance, capped at a max value
// (spec.md §3).
type PointsSpec struct {
	Percent  float64 `json:"percent" yaml:"percent"`
	MaxValue int     `json:"maxValue" yaml:"maxValue"`
}

// DefaultPrediction is the baseline betting rule: bet when the candidate
// outcome's probability falls in [MinPercentage, MaxPercentage].
type DefaultPrediction struct {
	MinPercentage float64    `json:"minPercentage" yaml:"minPercentage"`
	MaxPercentage float64    `json:"maxPercentage" yaml:"maxPercentage"`
	Points        PointsSpec `json:"points" yaml:"points"`
}

// DetailedOdds is an override rule that fires when the candidate outcome's
// probability, as a percentage, compares against Threshold by Operator,
// gated by a Bernoulli
// AttemptRate draw (spec.md §4.5 step 3).
type DetailedOdds struct {
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Operator    Operator   `json:"operator" yaml:"operator"`
	AttemptRate float64    `json:"attemptRate" yaml:"attemptRate"`
	Points      PointsSpec `json:"points" yaml:"points"`
}

// Strategy is currently a single variant: a default rule plus ordered
// overrides (spec.md §3).
type Strategy struct {
	Default  DefaultPrediction `json:"default" yaml:"default"`
	Detailed []DetailedOdds    `json:"detailed" yaml:"detailed"`
}

// PredictionConfig bundles the filter gate and the decision strategy.
type PredictionConfig struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Filters  []Filter `json:"filters" yaml:"filters"`
}

// Specific is an inline per-streamer configuration body.
type Specific struct {
	FollowRaid bool             `json:"followRaid" yaml:"followRaid"`
	Prediction PredictionConfig `json:"prediction" yaml:"prediction"`
}

// EmptySpecific is the "no bets" fallback used when a Preset reference names
// a preset that no longer exists (spec.md §4.3 invariant).
func EmptySpecific() Specific {
	return Specific{}
}

// ConfigKind distinguishes the two StreamerConfig shapes (spec.md §3).
type ConfigKind string

const (
	ConfigPreset   ConfigKind = "preset"
	ConfigSpecific ConfigKind = "specific"
)

// StreamerConfig is either a named Preset reference or an inline Specific
// body (spec.md §3, tagged-variant per §9 design notes).
type StreamerConfig struct {
	Kind       ConfigKind `json:"kind" yaml:"kind"`
	PresetName string     `json:"presetName,omitempty" yaml:"presetName,omitempty"`
	Specific   Specific   `json:"specific,omitempty" yaml:"specific,omitempty"`
}

// Resolve returns the effective Specific body for this config, looking up
// Preset references in presets. A missing preset resolves to EmptySpecific,
// never an error (spec.md §4.3 invariant: "no bets").
func (c StreamerConfig) Resolve(presets map[string]Specific) Specific {
	if c.Kind != ConfigPreset {
		return c.Specific
	}
	if body, ok := presets[c.PresetName]; ok {
		return body
	}
	return EmptySpecific()
}
