// Package relevance ranks issues by lexical proximity to an API-change vocabulary.
package relevance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// Filter scores issue fields against a fixed vocabulary.
type Filter struct {
	terms      []string
	vocabulary string
	threshold  float64
}

// New returns a filter over terms. Matching is case-insensitive.
func New(terms []string, threshold float64) *Filter {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return &Filter{
		terms:      lowered,
		vocabulary: strings.Join(lowered, " "),
		threshold:  threshold,
	}
}

// Threshold returns the minimum score a field needs to match.
func (f *Filter) Threshold() float64 {
	return f.threshold
}

// Score returns the partial-ratio of the joined vocabulary against text and the
// single vocabulary term that aligns best with it. Blank text scores 0.
func (f *Filter) Score(text string) (term string, score float64) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || f.vocabulary == "" {
		return "", 0
	}
	score = PartialRatio(f.vocabulary, text)

	best := -1.0
	for _, t := range f.terms {
		if s := PartialRatio(t, text); s > best {
			best, term = s, t
		}
	}
	return term, score
}

// Matches returns one match per field (title, body, each comment) scoring at
// or above the threshold.
func (f *Filter) Matches(issue model.Issue) []model.Match {
	var matches []model.Match
	add := func(kind, text string) {
		term, score := f.Score(text)
		if term == "" || score < f.threshold {
			return
		}
		matches = append(matches, model.Match{Type: kind, MatchedTerm: term, Score: score})
	}

	add("title", issue.Title)
	add("body", issue.BodyText())
	for _, c := range issue.Comments {
		add(fmt.Sprintf("comment_%d", c.ID), c.Body)
	}
	return matches
}

// Apply keeps the issues with at least one match, each annotated with its
// matches, ordered by descending best score. The input is not modified.
func (f *Filter) Apply(issues []model.Issue) []model.Issue {
	kept := make([]model.Issue, 0)
	for _, issue := range issues {
		matches := f.Matches(issue)
		if len(matches) == 0 {
			continue
		}
		annotated := issue
		annotated.Matches = matches
		kept = append(kept, annotated)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].BestScore() > kept[j].BestScore()
	})
	return kept
}
