package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// Result holds the results of a classification run.
type Result struct {
	Processed         int // issues that received a verdict in this run
	Labeled           int // of which carry at least one taxonomy label
	Unknown           int // of which fell back to Unknown
	AlreadyClassified int // issues skipped because they carried a verdict
}

// Checkpoint persists the working set.
type Checkpoint func(issues []model.Issue) error

// MergeVerdicts copies verdicts from previous onto issues without one,
// matching by issue number. It returns the number of verdicts copied.
func MergeVerdicts(issues, previous []model.Issue) int {
	byNumber := make(map[int]*model.Verdict, len(previous))
	for i := range previous {
		if previous[i].Verdict != nil {
			byNumber[previous[i].Number] = previous[i].Verdict
		}
	}
	merged := 0
	for i := range issues {
		if issues[i].Verdict != nil {
			continue
		}
		if v, ok := byNumber[issues[i].Number]; ok {
			issues[i].Verdict = v
			merged++
		}
	}
	return merged
}

// ClassifyIssues assigns a verdict to every issue that has none, in order,
// updating the slice in place. Issues with a verdict are never sent to the
// oracle. checkpoint is called every `every` newly classified issues, once at
// the end, and before returning on cancellation. Without an oracle only the
// issues lacking content are classified before ErrNoProvider is returned.
func (c *Classifier) ClassifyIssues(ctx context.Context, issues []model.Issue, checkpoint Checkpoint, every int) (Result, error) {
	var r Result

	save := func() error {
		if checkpoint == nil {
			return nil
		}
		if err := checkpoint(issues); err != nil {
			return fmt.Errorf("checkpointing: %w", err)
		}
		return nil
	}

	sinceCheckpoint := 0
	for i := range issues {
		issue := &issues[i]
		if issue.Verdict != nil {
			r.AlreadyClassified++
			continue
		}

		if c.provider == nil && issue.HasContent() {
			continue
		}

		verdict, err := c.Classify(ctx, *issue)
		if err != nil {
			if saveErr := save(); saveErr != nil {
				log.Error().Err(saveErr).Msg("checkpoint after cancellation failed")
			}
			return r, err
		}

		issue.Verdict = &verdict
		r.Processed++
		if verdict.IsUnknown() {
			r.Unknown++
		} else {
			r.Labeled++
		}
		log.Info().Int("issue", issue.Number).Str("labels", joinLabels(verdict.Labels())).Msg("classified")

		sinceCheckpoint++
		if every > 0 && sinceCheckpoint >= every {
			if err := save(); err != nil {
				return r, err
			}
			sinceCheckpoint = 0
		}
	}

	if err := save(); err != nil {
		return r, err
	}
	if c.provider == nil {
		return r, ErrNoProvider
	}
	log.Info().Int("processed", r.Processed).Int("labeled", r.Labeled).Int("unknown", r.Unknown).
		Int("already_classified", r.AlreadyClassified).Msg("classification complete")
	return r, nil
}

func joinLabels(labels []model.Label) string {
	s := make([]string, len(labels))
	for i, l := range labels {
		s[i] = string(l)
	}
	return strings.Join(s, ", ")
}
