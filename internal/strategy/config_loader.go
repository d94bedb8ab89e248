package strategy

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights are the blend coefficients. Each profile must sum to 1.
type Weights struct {
	Sentiment float64 `yaml:"sentiment" json:"sentiment"`
	Technical float64 `yaml:"technical" json:"technical"`
	Market    float64 `yaml:"market" json:"market"`
	OrderBook float64 `yaml:"order_book" json:"order_book"`
}

func (w Weights) Sum() float64 {
	return w.Sentiment + w.Technical + w.Market + w.OrderBook
}

// Tuning holds every constant of the decision core.
type Tuning struct {
	WithSentiment        Weights `yaml:"with_sentiment"`
	WithoutSentiment     Weights `yaml:"without_sentiment"`
	BaseThreshold        float64 `yaml:"base_threshold"`
	ConfidenceMultiplier float64 `yaml:"confidence_multiplier"`
}

func DefaultTuning() Tuning {
	return Tuning{
		WithSentiment:        Weights{Sentiment: 0.35, Technical: 0.40, Market: 0.15, OrderBook: 0.10},
		WithoutSentiment:     Weights{Sentiment: 0, Technical: 0.60, Market: 0.25, OrderBook: 0.15},
		BaseThreshold:        0.25,
		ConfidenceMultiplier: 1.0,
	}
}

// TuningFile is the top-level YAML structure.
type TuningFile struct {
	Tuning Tuning `yaml:"tuning"`
}

// LoadTuning reads tuning overrides from YAML on top of DefaultTuning.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}

	file := TuningFile{Tuning: t}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return t, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := file.Tuning.Validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return file.Tuning, nil
}

const weightTolerance = 1e-9

func (t Tuning) Validate() error {
	var errs []error
	for name, w := range map[string]Weights{"with_sentiment": t.WithSentiment, "without_sentiment": t.WithoutSentiment} {
		if math.Abs(w.Sum()-1) > weightTolerance {
			errs = append(errs, fmt.Errorf("%s weights sum to %.4f, want 1", name, w.Sum()))
		}
		if w.Sentiment < 0 || w.Technical < 0 || w.Market < 0 || w.OrderBook < 0 {
			errs = append(errs, fmt.Errorf("%s weights must be non-negative", name))
		}
	}
	if t.WithoutSentiment.Sentiment != 0 {
		errs = append(errs, errors.New("without_sentiment.sentiment must be 0"))
	}
	if t.BaseThreshold <= 0 || t.BaseThreshold >= 1 {
		errs = append(errs, fmt.Errorf("base_threshold %.4f must be in (0,1)", t.BaseThreshold))
	}
	if t.ConfidenceMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("confidence_multiplier %.4f must be positive", t.ConfidenceMultiplier))
	}
	return errors.Join(errs...)
}
