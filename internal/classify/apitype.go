package classify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/integrations"
	"github.com/TobiSchelling/apichanges/internal/llm"
	"github.com/TobiSchelling/apichanges/internal/model"
)

const maxDocumentationRunes = 12000

// IntegrationResult holds the results of an API-type run.
type IntegrationResult struct {
	Processed         int
	Unknown           int
	AlreadyClassified int
}

// ClassifyIntegration returns the API type of one integration. Failures are
// absorbed into the UnknownApi verdict; only cancellation returns an error.
func (c *Classifier) ClassifyIntegration(ctx context.Context, in model.Integration) (model.APITypeVerdict, error) {
	if c.provider == nil {
		return model.APITypeVerdict{}, ErrNoProvider
	}

	text := truncate(integrations.PlainText(in.Content, in.API), maxDocumentationRunes)
	if text == "" {
		c.record(in.API, "", model.OutcomeSkipped, model.NoContentExplanation)
		return model.UnknownAPITypeVerdict(), nil
	}

	out, err := c.provider.Generate(ctx, llm.Request{
		System:     apiTypeSystemPrompt,
		Prompt:     fmt.Sprintf(apiTypePrompt, text),
		SchemaName: "api_type_classification",
		Schema:     apiTypeSchema,
		MaxTokens:  c.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.APITypeVerdict{}, ctx.Err()
		}
		c.record(in.API, "documentation", model.OutcomeFailed, err.Error())
		return model.UnknownAPITypeVerdict(), nil
	}

	verdict, err := parseAPIType(out)
	if err != nil {
		c.record(in.API, "documentation", model.OutcomeFailed, err.Error())
		return model.UnknownAPITypeVerdict(), nil
	}
	c.record(in.API, "documentation", model.OutcomeOK, string(verdict.APIType))
	return verdict, nil
}

func parseAPIType(text string) (model.APITypeVerdict, error) {
	var v model.APITypeVerdict
	if err := llm.DecodeJSON(text, &v); err != nil {
		return v, err
	}
	t, err := model.ParseAPIType(string(v.APIType))
	if err != nil {
		return v, err
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return v, fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	v.APIType = t
	return v, nil
}

// ClassifyIntegrations assigns an API type to every integration without one,
// in place. Checkpointing follows ClassifyIssues.
func (c *Classifier) ClassifyIntegrations(ctx context.Context, ins []model.Integration, checkpoint func([]model.Integration) error, every int) (IntegrationResult, error) {
	var r IntegrationResult
	if c.provider == nil {
		return r, ErrNoProvider
	}

	save := func() error {
		if checkpoint == nil {
			return nil
		}
		if err := checkpoint(ins); err != nil {
			return fmt.Errorf("checkpointing: %w", err)
		}
		return nil
	}

	since := 0
	for i := range ins {
		if ins[i].IntegrationType != nil {
			r.AlreadyClassified++
			continue
		}
		verdict, err := c.ClassifyIntegration(ctx, ins[i])
		if err != nil {
			if saveErr := save(); saveErr != nil {
				log.Error().Err(saveErr).Msg("checkpoint after cancellation failed")
			}
			return r, err
		}
		ins[i].IntegrationType = &verdict
		r.Processed++
		if verdict.APIType == model.UnknownAPI {
			r.Unknown++
		}
		log.Info().Str("api", ins[i].API).Str("type", string(verdict.APIType)).Msg("classified integration")

		since++
		if every > 0 && since >= every {
			if err := save(); err != nil {
				return r, err
			}
			since = 0
		}
	}
	return r, save()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
