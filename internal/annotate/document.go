// Package annotate records a human reviewer's agreement with the machine
// verdicts, one issue at a time, resumable across sessions.
package annotate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/model"
)

// Document is the persisted annotation state. Progress is the index of the
// next issue to review.
type Document struct {
	Issues   []model.Issue `json:"issues"`
	Progress int           `json:"progress"`
}

// Load reads an annotation document. Besides its own shape it accepts a bare
// list of issues and a {"search_results": [...]} document, both starting at
// progress 0.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return doc, nil
}

func decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var issues []model.Issue
		if err := json.Unmarshal(trimmed, &issues); err != nil {
			return nil, err
		}
		return &Document{Issues: issues}, nil
	}

	var raw struct {
		Issues        []model.Issue `json:"issues"`
		Progress      int           `json:"progress"`
		SearchResults []model.Issue `json:"search_results"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	if raw.SearchResults != nil {
		return &Document{Issues: raw.SearchResults}, nil
	}
	if raw.Progress < 0 {
		return nil, fmt.Errorf("progress %d is negative", raw.Progress)
	}
	return &Document{Issues: raw.Issues, Progress: raw.Progress}, nil
}

// Save writes the document to path.
func Save(path string, doc *Document) error {
	if doc.Issues == nil {
		doc.Issues = []model.Issue{}
	}
	return jsonfile.Write(path, doc)
}

// Done reports whether no issue remains to review from the cursor.
func (d *Document) Done() bool {
	return d.Progress >= len(d.Issues)
}

// Current returns the issue under the cursor.
func (d *Document) Current() model.Issue {
	return d.Issues[d.Progress]
}

// Apply performs one transition from the issue under the cursor. Agree and
// disagree record the decision, skip leaves the issue untouched, and all three
// advance the cursor. Quit leaves the cursor where it is. Once the last issue
// is handled the cursor resets to 0 and Apply reports completion.
func (d *Document) Apply(a Action) (completed bool, err error) {
	if d.Done() {
		return false, fmt.Errorf("no issue at position %d of %d", d.Progress, len(d.Issues))
	}
	switch a {
	case Agree, Disagree:
		d.Issues[d.Progress].AuthorAnnotation = &model.Annotation{IsAPIChange: a == Agree}
	case Skip:
	case Quit:
		return false, nil
	default:
		return false, fmt.Errorf("unknown action %q", string(a))
	}

	d.Progress++
	if d.Done() {
		d.Progress = 0
		return true, nil
	}
	return false, nil
}
