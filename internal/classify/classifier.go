// Package classify assigns taxonomy labels to issues and API types to
// integrations through an LLM oracle.
package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/llm"
	"github.com/TobiSchelling/apichanges/internal/model"
)

// ErrNoProvider is returned when classification is requested without an oracle.
var ErrNoProvider = errors.New("no LLM provider available")

// Strategy is one way of presenting an issue to the oracle. Strategies are
// tried in order until one yields a valid verdict.
type Strategy struct {
	Name     string
	Comments func(all []string) []string
}

// DefaultStrategies sends every comment first, then retries with none.
var DefaultStrategies = []Strategy{
	{Name: "full-comments", Comments: func(all []string) []string { return all }},
	{Name: "no-comments", Comments: func([]string) []string { return nil }},
}

// Recorder persists oracle attempts.
type Recorder interface {
	RecordAttempt(model.OracleAttempt) error
}

// Classifier queries the oracle with degrading strategies.
type Classifier struct {
	provider   llm.Provider
	recorder   Recorder
	strategies []Strategy
	maxTokens  int
}

// NewClassifier creates a classifier. recorder may be nil.
func NewClassifier(provider llm.Provider, recorder Recorder, maxTokens int) *Classifier {
	return &Classifier{
		provider:   provider,
		recorder:   recorder,
		strategies: DefaultStrategies,
		maxTokens:  maxTokens,
	}
}

// Subject is the ledger subject of an issue.
func Subject(issue model.Issue) string {
	return fmt.Sprintf("issue#%d", issue.Number)
}

// Classify returns the verdict for one issue. An issue without a title or
// body is Unknown without consulting the oracle. Oracle failures are
// absorbed: when every strategy fails the Unknown verdict is returned. The
// only errors are a missing oracle and cancellation of ctx, in which case no
// verdict is produced.
func (c *Classifier) Classify(ctx context.Context, issue model.Issue) (model.Verdict, error) {
	subject := Subject(issue)
	if !issue.HasContent() {
		c.record(subject, "", model.OutcomeSkipped, model.NoContentExplanation)
		return model.UnknownVerdict(), nil
	}
	if c.provider == nil {
		return model.Verdict{}, ErrNoProvider
	}

	title, body, comments := issue.Title, issue.BodyText(), issue.CommentBodies()

	system := SystemPrompt()
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return model.Verdict{}, err
		}

		text, err := c.provider.Generate(ctx, llm.Request{
			System:     system,
			Prompt:     IssuePrompt(title, body, s.Comments(comments)),
			SchemaName: "api_taxonomy_classification",
			Schema:     verdictSchema,
			MaxTokens:  c.maxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return model.Verdict{}, ctx.Err()
			}
			c.record(subject, s.Name, model.OutcomeFailed, err.Error())
			log.Debug().Str("subject", subject).Str("strategy", s.Name).Err(err).Msg("oracle call failed")
			continue
		}

		verdict, err := parseVerdict(text)
		if err != nil {
			c.record(subject, s.Name, model.OutcomeFailed, err.Error())
			log.Debug().Str("subject", subject).Str("strategy", s.Name).Err(err).Msg("unusable oracle response")
			continue
		}

		c.record(subject, s.Name, model.OutcomeOK, fmt.Sprint(verdict.Labels()))
		return verdict, nil
	}

	log.Warn().Str("subject", subject).Msg("all strategies failed, recording Unknown")
	return model.UnknownVerdict(), nil
}

// parseVerdict decodes and validates an oracle answer, normalizing labels.
func parseVerdict(text string) (model.Verdict, error) {
	var v model.Verdict
	if err := llm.DecodeJSON(text, &v); err != nil {
		return model.Verdict{}, err
	}
	if err := v.Validate(); err != nil {
		return model.Verdict{}, err
	}
	for i := range v.Classes {
		label, _ := model.ParseLabel(string(v.Classes[i].Label))
		v.Classes[i].Label = label
	}
	return v, nil
}

func (c *Classifier) record(subject, strategy, outcome, detail string) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.RecordAttempt(model.OracleAttempt{
		Subject:  subject,
		Strategy: strategy,
		Outcome:  outcome,
		Detail:   detail,
	})
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("recording oracle attempt")
	}
}
