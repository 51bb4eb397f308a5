// Package classifier holds the trained text artifacts used for risk
// classification: a TF-IDF vectorizer and a linear risk model, both exported
// to JSON by the training pipeline.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
)

var (
	ErrFeatureMismatch = errors.New("feature count mismatch")
	ErrEmptyArtifact   = errors.New("artifact is empty")
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer turns raw text into a TF-IDF weighted feature vector using a
// fixed vocabulary.
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	Lowercase   *bool          `json:"lowercase,omitempty"`
	NgramRange  [2]int         `json:"ngram_range"`
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm"`
	StopWords   []string       `json:"stop_words,omitempty"`

	stop map[string]struct{}
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// LoadVectorizer reads a vectorizer export and checks it is self-consistent.
func LoadVectorizer(path string) (*Vectorizer, error) {
	var v Vectorizer
	if err := loadJSON(path, &v); err != nil {
		return nil, err
	}
	if err := v.init(); err != nil {
		return nil, fmt.Errorf("invalid vectorizer %s: %w", path, err)
	}
	return &v, nil
}

func (v *Vectorizer) init() error {
	if len(v.IDF) == 0 || len(v.Vocabulary) == 0 {
		return ErrEmptyArtifact
	}
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return fmt.Errorf("term %q has index %d outside [0, %d)", term, idx, len(v.IDF))
		}
	}

	if v.NgramRange == [2]int{} {
		v.NgramRange = [2]int{1, 1}
	}
	if v.NgramRange[0] < 1 || v.NgramRange[1] < v.NgramRange[0] {
		return fmt.Errorf("invalid ngram_range %v", v.NgramRange)
	}

	switch v.Norm {
	case "":
		v.Norm = "l2"
	case "l1", "l2", "none":
	default:
		return fmt.Errorf("unsupported norm %q", v.Norm)
	}

	v.stop = make(map[string]struct{}, len(v.StopWords))
	for _, w := range v.StopWords {
		v.stop[w] = struct{}{}
	}
	return nil
}

// NumFeatures is the length of every vector Transform returns.
func (v *Vectorizer) NumFeatures() int {
	return len(v.IDF)
}

func (v *Vectorizer) tokenize(text string) []string {
	if v.Lowercase == nil || *v.Lowercase {
		text = strings.ToLower(text)
	}

	words := tokenPattern.FindAllString(text, -1)
	if len(v.stop) == 0 {
		return words
	}

	kept := words[:0]
	for _, w := range words {
		if _, ok := v.stop[w]; !ok {
			kept = append(kept, w)
		}
	}
	return kept
}

// Transform returns the dense TF-IDF vector of text. Terms outside the
// vocabulary are ignored.
func (v *Vectorizer) Transform(text string) []float64 {
	out := make([]float64, len(v.IDF))
	tokens := v.tokenize(text)

	counts := make(map[int]float64)
	for n := v.NgramRange[0]; n <= v.NgramRange[1]; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+n], " ")
			if idx, ok := v.Vocabulary[gram]; ok {
				counts[idx]++
			}
		}
	}

	for idx, tf := range counts {
		if v.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		out[idx] = tf * v.IDF[idx]
	}

	normalize(out, v.Norm)
	return out
}

func normalize(vec []float64, norm string) {
	var total float64
	switch norm {
	case "l2":
		for _, x := range vec {
			total += x * x
		}
		total = math.Sqrt(total)
	case "l1":
		for _, x := range vec {
			total += math.Abs(x)
		}
	default:
		return
	}

	if total == 0 {
		return
	}
	for i := range vec {
		vec[i] /= total
	}
}
