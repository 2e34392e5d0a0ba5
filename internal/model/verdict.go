package model

import "fmt"

// NoContentExplanation is the explanation attached to fallback verdicts.
const NoContentExplanation = "No content to analyze"

// Classification is one label the oracle assigned, with its advisory confidence.
type Classification struct {
	Label       Label   `json:"class_type"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Verdict is the classifier output for a single issue.
type Verdict struct {
	Classes []Classification `json:"api_taxonomy_classes"`
}

// UnknownVerdict is recorded when the oracle was skipped or every attempt failed.
func UnknownVerdict() Verdict {
	return Verdict{Classes: []Classification{{
		Label:       Unknown,
		Confidence:  0.0,
		Explanation: NoContentExplanation,
	}}}
}

// Validate enforces the output contract: at least one entry, every label in the
// taxonomy, every confidence within [0, 1].
func (v Verdict) Validate() error {
	if len(v.Classes) == 0 {
		return fmt.Errorf("verdict has no classes")
	}
	for i, c := range v.Classes {
		if _, err := ParseLabel(string(c.Label)); err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("class %d: confidence %v outside [0,1]", i, c.Confidence)
		}
	}
	return nil
}

// Labels returns the labels in verdict order.
func (v Verdict) Labels() []Label {
	labels := make([]Label, 0, len(v.Classes))
	for _, c := range v.Classes {
		labels = append(labels, c.Label)
	}
	return labels
}

// IsUnknown reports whether the verdict carries only the Unknown label.
func (v Verdict) IsUnknown() bool {
	for _, c := range v.Classes {
		if c.Label != Unknown {
			return false
		}
	}
	return true
}
