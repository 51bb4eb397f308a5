package classifier

import (
	"errors"
	"fmt"
	"math"
)

// RiskModel is a linear classifier over TF-IDF features. Binary models carry a
// single coefficient row for the positive (second) class; multiclass models
// carry one row per class and are scored with softmax.
type RiskModel struct {
	Classes   []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

type Prediction struct {
	Label         string             `json:"label"`
	Probability   float64            `json:"probability"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func LoadRiskModel(path string) (*RiskModel, error) {
	var m RiskModel
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid risk model %s: %w", path, err)
	}
	return &m, nil
}

func (m *RiskModel) validate() error {
	if len(m.Coef) == 0 || len(m.Coef[0]) == 0 {
		return ErrEmptyArtifact
	}
	if len(m.Classes) < 2 {
		return errors.New("at least two classes are required")
	}

	rows := len(m.Classes)
	if rows == 2 {
		rows = 1
	}
	if len(m.Coef) != rows || len(m.Intercept) != rows {
		return fmt.Errorf("expected %d coefficient rows and intercepts, got %d and %d", rows, len(m.Coef), len(m.Intercept))
	}

	width := len(m.Coef[0])
	for i, row := range m.Coef {
		if len(row) != width {
			return fmt.Errorf("coefficient row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return nil
}

func (m *RiskModel) NumFeatures() int {
	return len(m.Coef[0])
}

// CheckCompatible reports whether v produces vectors this model can score.
func (m *RiskModel) CheckCompatible(v *Vectorizer) error {
	if v.NumFeatures() != m.NumFeatures() {
		return fmt.Errorf("%w: vectorizer has %d features, risk model expects %d",
			ErrFeatureMismatch, v.NumFeatures(), m.NumFeatures())
	}
	return nil
}

// PredictProba returns one probability per entry of Classes.
func (m *RiskModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.NumFeatures() {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrFeatureMismatch, len(x), m.NumFeatures())
	}

	scores := make([]float64, len(m.Coef))
	for i, row := range m.Coef {
		s := m.Intercept[i]
		for j, w := range row {
			s += w * x[j]
		}
		scores[i] = s
	}

	if len(m.Classes) == 2 {
		p := 1 / (1 + math.Exp(-scores[0]))
		return []float64{1 - p, p}, nil
	}
	return softmax(scores), nil
}

func (m *RiskModel) Predict(x []float64) (Prediction, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return Prediction{}, err
	}

	best := 0
	out := Prediction{Probabilities: make(map[string]float64, len(probs))}
	for i, p := range probs {
		out.Probabilities[m.Classes[i]] = p
		if p > probs[best] {
			best = i
		}
	}
	out.Label = m.Classes[best]
	out.Probability = probs[best]
	return out, nil
}

func softmax(scores []float64) []float64 {
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}

	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
