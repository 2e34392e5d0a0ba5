// Package pipeline wires the stages together: ingest, filter, scrape, join
// and classify, each reading and writing its files under the data directory.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/classify"
	"github.com/TobiSchelling/apichanges/internal/config"
	"github.com/TobiSchelling/apichanges/internal/corpus"
	"github.com/TobiSchelling/apichanges/internal/database"
	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/llm"
	"github.com/TobiSchelling/apichanges/internal/model"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the stages against one configuration.
type Pipeline struct {
	cfg     *config.Config
	paths   config.Paths
	db      *database.DB
	tracker corpus.Tracker

	provider    llm.Provider
	providerSet bool
}

// New creates a pipeline. db may be nil, in which case no ledger is kept.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, paths: cfg.Paths(), db: db}
}

// WithTracker replaces the GitHub tracker built from config.
func (p *Pipeline) WithTracker(t corpus.Tracker) *Pipeline {
	p.tracker = t
	return p
}

// WithProvider replaces the configured LLM provider. A nil provider disables
// classification.
func (p *Pipeline) WithProvider(provider llm.Provider) *Pipeline {
	p.provider = provider
	p.providerSet = true
	return p
}

// llmProvider returns the provider, choosing it from the classification
// config on first use.
func (p *Pipeline) llmProvider() llm.Provider {
	if !p.providerSet {
		p.provider = llm.CreateProvider(p.cfg.Classification)
		p.providerSet = true
	}
	return p.provider
}

// Paths returns the file layout the pipeline works on.
func (p *Pipeline) Paths() config.Paths {
	return p.paths
}

// Run executes ingest, filter, join and classify in order. A failing step
// stops the run, since every later step reads the previous step's output.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	steps := []func(context.Context) StepResult{
		p.Ingest,
		func(context.Context) StepResult { return p.Filter() },
		func(context.Context) StepResult { return p.Join() },
		p.Classify,
	}
	for i, step := range steps {
		log.Info().Msgf("Step %d/%d", i+1, len(steps))
		res := step(ctx)
		r.Steps = append(r.Steps, res)
		if res.Err != nil {
			break
		}
	}
	return r
}

// DryRun reports the pending work of each stage without executing anything.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}
	store := corpus.NewStore(p.paths.Batches, p.cfg.Tracker.Repo)

	batches, issues, err := store.Stats()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("[dry-run] %d issues stored in %d batches; would fetch up to %d new issues from %s", issues, batches, p.cfg.Tracker.BatchSize, p.cfg.Tracker.Repo),
		Err:     err,
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Filter",
		Summary: fmt.Sprintf("[dry-run] would score %d issues against %d terms (threshold %.0f)", issues, len(p.cfg.Relevance.Keywords), p.cfg.Relevance.Threshold),
	})

	var prefiltered model.IssueResults
	var integrations model.IntegrationResults
	summary := "[dry-run] "
	if err := jsonfile.Read(p.paths.Prefiltered, &prefiltered); err != nil {
		summary += "no prefiltered issues yet; "
	} else {
		summary += fmt.Sprintf("%d prefiltered issues; ", len(prefiltered.SearchResults))
	}
	if err := jsonfile.Read(p.paths.Integrations, &integrations); err != nil {
		summary += "no integrations scraped yet"
	} else {
		summary += fmt.Sprintf("%d known integrations", len(integrations.SearchResults))
	}
	r.Steps = append(r.Steps, StepResult{Name: "Join", Summary: summary})

	var joined, classified model.IssueDocument
	pending := 0
	if err := jsonfile.Read(p.paths.JoinedIssues, &joined); err == nil {
		if jsonfile.Exists(p.paths.Classified) {
			if err := jsonfile.Read(p.paths.Classified, &classified); err == nil {
				classify.MergeVerdicts(joined.Issues, classified.Issues)
			}
		}
		for _, issue := range joined.Issues {
			if issue.Verdict == nil {
				pending++
			}
		}
	}
	provider := "none"
	if pr := p.llmProvider(); pr != nil {
		provider = pr.Name()
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("[dry-run] %d issues need a verdict (provider: %s)", pending, provider),
	})

	return r
}

// track records a stage run in the ledger around fn.
func (p *Pipeline) track(stage string, fn func(recorder classify.Recorder) StepResult) StepResult {
	if p.db == nil {
		return fn(nil)
	}

	runID, err := p.db.StartRun(stage)
	if err != nil {
		log.Warn().Err(err).Str("stage", stage).Msg("ledger unavailable, continuing without it")
		return fn(nil)
	}

	start := time.Now()
	res := fn(p.db.Recorder(runID))
	if err := p.db.FinishRun(runID, res.Summary, res.Err); err != nil {
		log.Warn().Err(err).Str("stage", stage).Msg("closing ledger run")
	}
	log.Debug().Str("stage", stage).Str("run", runID).Dur("took", time.Since(start)).Msg("stage finished")
	return res
}
