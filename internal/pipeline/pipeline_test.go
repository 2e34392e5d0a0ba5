package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/apichanges/internal/classify"
	"github.com/TobiSchelling/apichanges/internal/config"
	"github.com/TobiSchelling/apichanges/internal/corpus"
	"github.com/TobiSchelling/apichanges/internal/database"
	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/llm"
	"github.com/TobiSchelling/apichanges/internal/model"
)

type fakeTracker struct {
	issues []model.Issue
	err    error
}

func (f *fakeTracker) Issues(ctx context.Context, fn func(model.Issue) error) error {
	if f.err != nil {
		return f.err
	}
	for _, issue := range f.issues {
		if err := fn(issue); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTracker) Comments(ctx context.Context, number int) ([]model.Comment, error) {
	return nil, nil
}

type stubProvider struct {
	calls int
}

func (s *stubProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	label := model.Taxonomy[0].Leaves[0].Label
	out, _ := json.Marshal(model.Verdict{Classes: []model.Classification{{Label: label, Confidence: 0.9, Explanation: "payload"}}})
	return string(out), nil
}

func (s *stubProvider) IsConfigured() bool { return true }
func (s *stubProvider) Name() string       { return "stub" }

func body(s string) *string { return &s }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.DataDir = t.TempDir()
	cfg.Tracker.BatchSize = 10
	cfg.Classification.CheckpointEvery = 1
	return cfg
}

func sampleIssues() []model.Issue {
	return []model.Issue{
		{Number: 10, Title: "", Tags: []string{"integration: hue"}},
		{Number: 20, Title: "Request response schema update version bump", Body: body("The api endpoint changed."), Tags: []string{"integration: hue"}},
		{Number: 30, Title: "Kitchen lamp flickers", Body: body("Since Tuesday."), Tags: []string{"integration: hue"}},
		{Number: 40, Title: "Endpoint deprecated", Tags: []string{"integration: unknown_thing"}},
	}
}

func writeIntegrations(t *testing.T, cfg *config.Config) {
	t.Helper()
	in := model.NewIntegration(cfg.Integrations.BaseURL+"hue", "0.60", "Local Push", "<p>bridge</p>", []string{"Light"})
	require.NoError(t, jsonfile.Write(cfg.Paths().Integrations, model.IntegrationResults{SearchResults: []model.Integration{in}}))
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeIntegrations(t, cfg)

	db, err := database.Open(cfg.Paths().Ledger)
	require.NoError(t, err)
	defer db.Close()

	provider := &stubProvider{}
	p := New(cfg, db).WithTracker(&fakeTracker{issues: sampleIssues()}).WithProvider(provider)

	res := p.Run(context.Background())
	require.False(t, res.Failed(), "%+v", res.Steps)
	require.Len(t, res.Steps, 4)

	var prefiltered model.IssueResults
	require.NoError(t, jsonfile.Read(cfg.Paths().Prefiltered, &prefiltered))
	numbers := []int{}
	for _, issue := range prefiltered.SearchResults {
		numbers = append(numbers, issue.Number)
	}
	assert.Contains(t, numbers, 20)
	assert.NotContains(t, numbers, 10, "empty issues never match")

	var joined model.IssueDocument
	require.NoError(t, jsonfile.Read(cfg.Paths().JoinedIssues, &joined))
	require.NotEmpty(t, joined.Issues)
	for _, issue := range joined.Issues {
		assert.Equal(t, []string{cfg.Integrations.BaseURL + "hue"}, issue.InvolvedAPIs)
	}

	var classified model.IssueDocument
	require.NoError(t, jsonfile.Read(cfg.Paths().Classified, &classified))
	require.Len(t, classified.Issues, len(joined.Issues))
	for _, issue := range classified.Issues {
		require.NotNil(t, issue.Verdict, "issue %d", issue.Number)
	}
	assert.Equal(t, len(joined.Issues), provider.calls)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Runs)
	assert.Equal(t, len(joined.Issues), stats.Attempts)

	// A second run fetches nothing new and sends nothing to the oracle.
	provider.calls = 0
	res = p.Run(context.Background())
	require.False(t, res.Failed(), "%+v", res.Steps)
	assert.Contains(t, res.Steps[0].Summary, "No new issues")
	assert.Zero(t, provider.calls)

	batches, _, err := corpus.NewStore(cfg.Paths().Batches, cfg.Tracker.Repo).Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, batches)
}

func TestRunStopsWhenIngestFails(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil).WithTracker(&fakeTracker{err: errors.New("tracker down")}).WithProvider(&stubProvider{})

	res := p.Run(context.Background())
	require.Len(t, res.Steps, 1)
	assert.Error(t, res.Steps[0].Err)
	assert.True(t, res.Failed())
}

func TestIngestRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tracker.TokenEnv = "APICHANGES_TEST_TOKEN_UNSET"
	t.Setenv("APICHANGES_TEST_TOKEN_UNSET", "")

	res := New(cfg, nil).Ingest(context.Background())
	assert.ErrorIs(t, res.Err, corpus.ErrMissingToken)
}

func TestJoinWithoutIntegrationsNamesScrape(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil).WithTracker(&fakeTracker{issues: sampleIssues()})
	require.NoError(t, p.Ingest(context.Background()).Err)
	require.NoError(t, p.Filter().Err)

	res := p.Join()
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "apichanges scrape")
}

func TestClassifyWithoutProvider(t *testing.T) {
	cfg := testConfig(t)
	paths := cfg.Paths()
	joined := []model.Issue{{Number: 1}, {Number: 2, Title: "endpoint renamed"}}
	require.NoError(t, jsonfile.Write(paths.JoinedIssues, model.IssueDocument{Issues: joined}))

	res := New(cfg, nil).WithProvider(nil).Classify(context.Background())
	assert.ErrorIs(t, res.Err, classify.ErrNoProvider)

	var out model.IssueDocument
	require.NoError(t, jsonfile.Read(paths.Classified, &out))
	require.Len(t, out.Issues, 2)
	require.NotNil(t, out.Issues[0].Verdict)
	assert.True(t, out.Issues[0].Verdict.IsUnknown())
	assert.Nil(t, out.Issues[1].Verdict)
}

func TestClassifyKeepsEarlierVerdicts(t *testing.T) {
	cfg := testConfig(t)
	paths := cfg.Paths()

	unknown := model.UnknownVerdict()
	joined := []model.Issue{{Number: 1, Title: "a"}, {Number: 2, Title: "b"}}
	require.NoError(t, jsonfile.Write(paths.JoinedIssues, model.IssueDocument{Issues: joined}))
	require.NoError(t, jsonfile.Write(paths.Classified, model.IssueDocument{Issues: []model.Issue{{Number: 1, Title: "a", Verdict: &unknown}}}))

	provider := &stubProvider{}
	res := New(cfg, nil).WithProvider(provider).Classify(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, provider.calls)

	var out model.IssueDocument
	require.NoError(t, jsonfile.Read(paths.Classified, &out))
	assert.True(t, out.Issues[0].Verdict.IsUnknown())
	assert.False(t, out.Issues[1].Verdict.IsUnknown())
}

func TestClassifyIntegrations(t *testing.T) {
	cfg := testConfig(t)
	in := model.NewIntegration(cfg.Integrations.BaseURL+"hue", "0.60", "Local Push", "", []string{"Light"})
	require.NoError(t, jsonfile.Write(cfg.Paths().JoinedIntegrations, model.IntegrationResults{SearchResults: []model.Integration{in}}))

	provider := &stubProvider{}
	res := New(cfg, nil).WithProvider(provider).ClassifyIntegrations(context.Background())
	require.NoError(t, res.Err)
	assert.Zero(t, provider.calls, "empty documentation is not sent")

	var out model.IntegrationResults
	require.NoError(t, jsonfile.Read(cfg.Paths().JoinedIntegrations, &out))
	require.NotNil(t, out.SearchResults[0].IntegrationType)
	assert.Equal(t, model.UnknownAPI, out.SearchResults[0].IntegrationType.APIType)
}

func TestDryRun(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil).WithProvider(&stubProvider{})
	res := p.DryRun()
	require.Len(t, res.Steps, 4)
	for _, s := range res.Steps {
		assert.Contains(t, s.Summary, "[dry-run]")
	}
	assert.Contains(t, res.Steps[3].Summary, "provider: stub")
	assert.NoFileExists(t, filepath.Join(cfg.Paths().Root, "prefiltered.json"))
}
