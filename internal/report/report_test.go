package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/apichanges/internal/model"
)

func verdict(labels ...model.Label) *model.Verdict {
	v := model.Verdict{}
	for _, l := range labels {
		v.Classes = append(v.Classes, model.Classification{Label: l, Confidence: 0.8})
	}
	return &v
}

func annotated(isChange bool) *model.Annotation {
	return &model.Annotation{IsAPIChange: isChange}
}

func TestBuild(t *testing.T) {
	first := model.Taxonomy[0].Leaves[0].Label
	second := model.Taxonomy[0].Leaves[1].Label
	other := model.Taxonomy[1].Leaves[0].Label

	unknown := model.UnknownVerdict()
	issues := []model.Issue{
		{Number: 1, Verdict: verdict(first, second), AuthorAnnotation: annotated(true)},
		{Number: 2, Verdict: verdict(first), AuthorAnnotation: annotated(false)},
		{Number: 3, Verdict: verdict(other)},
		{Number: 4, Verdict: &unknown, AuthorAnnotation: annotated(false)},
		{Number: 5},
	}

	r := Build(issues)
	assert.Equal(t, 5, r.Issues)
	assert.Equal(t, 4, r.Classified)
	assert.Equal(t, 3, r.Labeled)
	assert.Equal(t, 1, r.Unknown)
	assert.Equal(t, 1, r.Unclassified)

	require.Len(t, r.Labels, 3)
	assert.Equal(t, LabelCount{Label: first, Category: model.Taxonomy[0].Name, Count: 2}, r.Labels[0])

	require.Len(t, r.Categories, 2)
	assert.Equal(t, CategoryCount{Category: model.Taxonomy[0].Name, Count: 2}, r.Categories[0], "an issue counts once per category")

	assert.Equal(t, 3, r.Annotated)
	assert.Equal(t, 1, r.Confirmed)
	assert.Equal(t, 2, r.Rejected)
	assert.Equal(t, 2, r.Agreements)
	assert.InDelta(t, 2.0/3.0, r.AgreementRate(), 1e-9)
}

func TestBuildEmpty(t *testing.T) {
	r := Build(nil)
	assert.Zero(t, r.Issues)
	assert.NotNil(t, r.Labels)
	assert.Zero(t, r.AgreementRate())
	assert.Contains(t, r.Markdown(), "No issues annotated yet.")
}

func TestMarkdownAndHTML(t *testing.T) {
	label := model.Taxonomy[0].Leaves[0].Label
	r := Build([]model.Issue{{Number: 1, Verdict: verdict(label), AuthorAnnotation: annotated(true)}})

	text := r.Markdown()
	assert.Contains(t, text, "| "+string(label)+" |")
	assert.Contains(t, text, "Agreement with classifier: 1 of 1 (100%)")

	html, err := r.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h1>API change classification</h1>")
}
