package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/classify"
	"github.com/TobiSchelling/apichanges/internal/corpus"
	"github.com/TobiSchelling/apichanges/internal/integrations"
	"github.com/TobiSchelling/apichanges/internal/join"
	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/model"
	"github.com/TobiSchelling/apichanges/internal/relevance"
)

// Ingest fetches one batch of issues not yet stored.
func (p *Pipeline) Ingest(ctx context.Context) StepResult {
	return p.track("ingest", func(classify.Recorder) StepResult {
		log.Info().Str("repo", p.cfg.Tracker.Repo).Msg("Ingesting issues...")
		tracker, err := p.trackerOrDefault()
		if err != nil {
			return StepResult{Name: "Ingest", Err: err}
		}

		store := corpus.NewStore(p.paths.Batches, p.cfg.Tracker.Repo)
		res, err := store.FetchBatch(ctx, tracker, p.cfg.Tracker.BatchSize)
		if err != nil {
			return StepResult{Name: "Ingest", Err: err}
		}
		if res.Issues == 0 {
			return StepResult{Name: "Ingest", Summary: fmt.Sprintf("No new issues (%d already stored)", res.Skipped)}
		}
		return StepResult{
			Name:    "Ingest",
			Summary: fmt.Sprintf("Stored %d new issues in batch %d (%d already stored)", res.Issues, res.Batch, res.Skipped),
		}
	})
}

func (p *Pipeline) trackerOrDefault() (corpus.Tracker, error) {
	if p.tracker != nil {
		return p.tracker, nil
	}
	token, err := corpus.TokenFromEnv(p.cfg.Tracker.TokenEnv)
	if err != nil {
		return nil, err
	}
	t, err := corpus.NewGitHubTracker(p.cfg.Tracker.Repo, token, corpus.GitHubOptions{
		BaseURL:           p.cfg.Tracker.BaseURL,
		RequestsPerSecond: p.cfg.Tracker.RequestsPerSecond,
		Timeout:           time.Duration(p.cfg.Tracker.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	p.tracker = t
	return t, nil
}

// Filter scores the whole corpus and writes the retained issues.
func (p *Pipeline) Filter() StepResult {
	return p.track("filter", func(classify.Recorder) StepResult {
		log.Info().Msg("Filtering issues...")
		issues, err := corpus.NewStore(p.paths.Batches, p.cfg.Tracker.Repo).LoadAll()
		if err != nil {
			return StepResult{Name: "Filter", Err: err}
		}

		f := relevance.New(p.cfg.Relevance.Keywords, p.cfg.Relevance.Threshold)
		kept := f.Apply(issues)
		if err := jsonfile.Write(p.paths.Prefiltered, model.IssueResults{SearchResults: kept}); err != nil {
			return StepResult{Name: "Filter", Err: err}
		}
		return StepResult{
			Name:    "Filter",
			Summary: fmt.Sprintf("Kept %d of %d issues at threshold %.0f", len(kept), len(issues), f.Threshold()),
		}
	})
}

// Scrape fetches the integration pages listed in the site index.
func (p *Pipeline) Scrape(ctx context.Context) StepResult {
	return p.track("scrape", func(classify.Recorder) StepResult {
		log.Info().Str("index", p.paths.IntegrationIndex).Msg("Scraping integrations...")
		pages, err := integrations.LoadIndex(p.paths.IntegrationIndex, p.cfg.Integrations.SiteURL)
		if err != nil {
			return StepResult{Name: "Scrape", Err: err}
		}

		s := integrations.NewScraper(integrations.Options{
			UserAgent:         p.cfg.Integrations.UserAgent,
			RequestsPerSecond: p.cfg.Integrations.RequestsPerSecond,
			Timeout:           time.Duration(p.cfg.Integrations.TimeoutSeconds) * time.Second,
		})
		kept, rep, err := s.Scrape(ctx, pages)
		if err != nil {
			return StepResult{Name: "Scrape", Err: err}
		}
		if kept == nil {
			kept = []model.Integration{}
		}
		if err := jsonfile.Write(p.paths.Integrations, model.IntegrationResults{SearchResults: kept}); err != nil {
			return StepResult{Name: "Scrape", Err: err}
		}
		return StepResult{
			Name: "Scrape",
			Summary: fmt.Sprintf("Kept %d of %d pages (%d without structure, %d failed, %d disallowed)",
				rep.Kept, len(pages), rep.Structure, rep.Failed, rep.Disallowed),
		}
	})
}

// Join cross-references the prefiltered issues with the scraped integrations.
func (p *Pipeline) Join() StepResult {
	return p.track("join", func(classify.Recorder) StepResult {
		log.Info().Msg("Joining issues and integrations...")
		var issues model.IssueResults
		if err := jsonfile.Read(p.paths.Prefiltered, &issues); err != nil {
			return StepResult{Name: "Join", Err: missing(err, "filter")}
		}
		var known model.IntegrationResults
		if err := jsonfile.Read(p.paths.Integrations, &known); err != nil {
			return StepResult{Name: "Join", Err: missing(err, "scrape")}
		}

		res := join.New(p.cfg.Integrations.BaseURL).Join(issues.SearchResults, known.SearchResults)
		if err := jsonfile.Write(p.paths.JoinedIssues, model.IssueDocument{Issues: res.Issues}); err != nil {
			return StepResult{Name: "Join", Err: err}
		}
		if err := jsonfile.Write(p.paths.JoinedIntegrations, model.IntegrationResults{SearchResults: res.Integrations}); err != nil {
			return StepResult{Name: "Join", Err: err}
		}
		return StepResult{
			Name: "Join",
			Summary: fmt.Sprintf("Kept %d of %d issues and %d of %d integrations",
				len(res.Issues), len(issues.SearchResults), len(res.Integrations), len(known.SearchResults)),
		}
	})
}

// Classify assigns verdicts to the joined issues, carrying over verdicts
// already present in the classified file.
func (p *Pipeline) Classify(ctx context.Context) StepResult {
	return p.track("classify", func(rec classify.Recorder) StepResult {
		log.Info().Msg("Classifying issues...")
		var doc model.IssueDocument
		if err := jsonfile.Read(p.paths.JoinedIssues, &doc); err != nil {
			return StepResult{Name: "Classify", Err: missing(err, "join")}
		}
		merged, err := p.mergePrevious(doc.Issues)
		if err != nil {
			return StepResult{Name: "Classify", Err: err}
		}
		if merged > 0 {
			log.Info().Int("verdicts", merged).Msg("carried over earlier verdicts")
		}

		checkpoint := func(issues []model.Issue) error {
			return jsonfile.Write(p.paths.Classified, model.IssueDocument{Issues: issues})
		}
		c := classify.NewClassifier(p.llmProvider(), rec, p.cfg.Classification.MaxTokens)
		res, err := c.ClassifyIssues(ctx, doc.Issues, checkpoint, p.cfg.Classification.CheckpointEvery)
		summary := fmt.Sprintf("Classified %d issues: %d labeled, %d Unknown (%d already classified)",
			res.Processed, res.Labeled, res.Unknown, res.AlreadyClassified)
		return StepResult{Name: "Classify", Summary: summary, Err: err}
	})
}

func (p *Pipeline) mergePrevious(issues []model.Issue) (int, error) {
	if !jsonfile.Exists(p.paths.Classified) {
		return 0, nil
	}
	var previous model.IssueDocument
	if err := jsonfile.Read(p.paths.Classified, &previous); err != nil {
		return 0, err
	}
	return classify.MergeVerdicts(issues, previous.Issues), nil
}

// ClassifyIntegrations assigns an API type to every joined integration.
func (p *Pipeline) ClassifyIntegrations(ctx context.Context) StepResult {
	return p.track("classify-integrations", func(rec classify.Recorder) StepResult {
		log.Info().Msg("Classifying integration API types...")
		provider := p.llmProvider()
		if provider == nil {
			return StepResult{Name: "Classify integrations", Err: classify.ErrNoProvider}
		}

		var doc model.IntegrationResults
		if err := jsonfile.Read(p.paths.JoinedIntegrations, &doc); err != nil {
			return StepResult{Name: "Classify integrations", Err: missing(err, "join")}
		}

		checkpoint := func(ins []model.Integration) error {
			return jsonfile.Write(p.paths.JoinedIntegrations, model.IntegrationResults{SearchResults: ins})
		}
		c := classify.NewClassifier(provider, rec, p.cfg.Classification.MaxTokens)
		res, err := c.ClassifyIntegrations(ctx, doc.SearchResults, checkpoint, p.cfg.Classification.CheckpointEvery)
		summary := fmt.Sprintf("Classified %d integrations: %d UnknownApi (%d already classified)",
			res.Processed, res.Unknown, res.AlreadyClassified)
		return StepResult{Name: "Classify integrations", Summary: summary, Err: err}
	})
}

// missing adds a hint naming the stage that produces a missing input.
func missing(err error, stage string) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w (run `apichanges %s` first)", err, stage)
	}
	return err
}
