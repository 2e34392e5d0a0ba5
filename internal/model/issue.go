package model

import "strings"

// Comment is a single tracker comment. Comments are stored once and never edited.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      string    `json:"user"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Match records one field of an issue that scored above the relevance threshold.
type Match struct {
	Type        string  `json:"type"`
	MatchedTerm string  `json:"matched_term"`
	Score       float64 `json:"score"`
}

// Annotation is the human reviewer's decision for an issue.
type Annotation struct {
	IsAPIChange bool `json:"is_api_change"`
}

// Issue is a tracker issue together with the annotations added by later stages.
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      *string    `json:"body"`
	State     string     `json:"state"`
	CreatedAt Timestamp  `json:"created_at"`
	UpdatedAt Timestamp  `json:"updated_at"`
	ClosedAt  *Timestamp `json:"closed_at"`
	Tags      []string   `json:"tags"`
	Comments  []Comment  `json:"comments"`

	Matches          []Match     `json:"matches,omitempty"`
	InvolvedAPIs     []string    `json:"involved_apis,omitempty"`
	Verdict          *Verdict    `json:"api_taxonomy_class,omitempty"`
	AuthorAnnotation *Annotation `json:"author_annotation,omitempty"`
}

// BodyText returns the body, or "" when the tracker sent none.
func (i Issue) BodyText() string {
	if i.Body == nil {
		return ""
	}
	return *i.Body
}

// CommentBodies returns the comment bodies in tracker order.
func (i Issue) CommentBodies() []string {
	bodies := make([]string, 0, len(i.Comments))
	for _, c := range i.Comments {
		bodies = append(bodies, c.Body)
	}
	return bodies
}

// HasContent reports whether the issue has a non-blank title or body.
func (i Issue) HasContent() bool {
	return strings.TrimSpace(i.Title) != "" || strings.TrimSpace(i.BodyText()) != ""
}

// BestScore returns the highest match score, or 0 without matches.
func (i Issue) BestScore() float64 {
	best := 0.0
	for _, m := range i.Matches {
		if m.Score > best {
			best = m.Score
		}
	}
	return best
}
