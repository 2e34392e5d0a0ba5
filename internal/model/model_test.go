package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsLegacyLayout(t *testing.T) {
	var c Comment
	err := json.Unmarshal([]byte(`{"id": 1, "body": "hi", "user": "u",
		"created_at": "2021-01-01 18:07:34+00:00", "updated_at": "2021-01-02T10:00:00Z"}`), &c)
	require.NoError(t, err)

	assert.Equal(t, 2021, c.CreatedAt.Year())
	assert.Equal(t, 18, c.CreatedAt.Hour())
	assert.Equal(t, 2, c.UpdatedAt.Day())
}

func TestTimestampMarshalsRFC3339(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 9, 19, 8, 30, 0, 0, time.UTC))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-09-19T08:30:00Z"`, string(data))
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
}

func TestIssueNullBodyRoundTrip(t *testing.T) {
	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(`{"number": 7, "title": "t", "body": null,
		"state": "open", "created_at": "2024-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z",
		"closed_at": null, "tags": [], "comments": []}`), &issue))

	assert.Nil(t, issue.Body)
	assert.Equal(t, "", issue.BodyText())
	assert.Nil(t, issue.ClosedAt)

	out, err := json.Marshal(issue)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"body":null`)
	assert.NotContains(t, string(out), "api_taxonomy_class")
}

func TestHasContent(t *testing.T) {
	blank := "   "
	assert.False(t, Issue{Title: "", Body: nil}.HasContent())
	assert.False(t, Issue{Title: " ", Body: &blank}.HasContent())
	assert.True(t, Issue{Title: "x"}.HasContent())
	body := "body"
	assert.True(t, Issue{Body: &body}.HasContent())
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel("Add Endpoint")
	require.NoError(t, err)
	assert.Equal(t, AddEndpoint, l)

	l, err = ParseLabel("Unknown")
	require.NoError(t, err)
	assert.Equal(t, Unknown, l)

	_, err = ParseLabel("add endpoint")
	assert.Error(t, err)
	_, err = ParseLabel("Something Else")
	assert.Error(t, err)
}

func TestLabelsCoversTaxonomy(t *testing.T) {
	labels := Labels()
	assert.Len(t, labels, 29)
	assert.Equal(t, Unknown, labels[len(labels)-1])
}

func TestUnknownVerdict(t *testing.T) {
	v := UnknownVerdict()
	require.Len(t, v.Classes, 1)
	assert.Equal(t, Unknown, v.Classes[0].Label)
	assert.Equal(t, 0.0, v.Classes[0].Confidence)
	assert.Equal(t, "No content to analyze", v.Classes[0].Explanation)
	assert.True(t, v.IsUnknown())
	assert.NoError(t, v.Validate())
}

func TestVerdictValidate(t *testing.T) {
	assert.Error(t, Verdict{}.Validate())
	assert.Error(t, Verdict{Classes: []Classification{{Label: "Made Up", Confidence: 0.5}}}.Validate())
	assert.Error(t, Verdict{Classes: []Classification{{Label: AddParameter, Confidence: 1.5}}}.Validate())
	assert.NoError(t, Verdict{Classes: []Classification{{Label: AddParameter, Confidence: 0.9}}}.Validate())
}

func TestNewIntegrationDerivesFields(t *testing.T) {
	tests := []struct {
		iotClass   string
		deployment string
		mechanism  string
	}{
		{"Cloud Push", "Cloud", "Push"},
		{"Cloud Polling", "Cloud", "Polling"},
		{"Local Push", "Local", "Push"},
		{"local polling", "Local", "Polling"},
		{"Unknown", "Local", "Polling"},
	}
	for _, tt := range tests {
		t.Run(tt.iotClass, func(t *testing.T) {
			in := NewIntegration("https://example.com/integrations/x", "2021.1", tt.iotClass, "", nil)
			assert.Equal(t, tt.deployment, in.DeploymentType)
			assert.Equal(t, tt.mechanism, in.CommunicationMechanism)
		})
	}
}

func TestIntegrationValidity(t *testing.T) {
	in := NewIntegration("a", "1", "Local Push", "", []string{"Light", "Other"})
	assert.True(t, in.HasValidIoTClass())
	assert.True(t, in.HasValidCategory())

	in = NewIntegration("a", "1", "Calculated", "", []string{"Other"})
	assert.False(t, in.HasValidIoTClass())
	assert.False(t, in.HasValidCategory())
}

func TestParseAPIType(t *testing.T) {
	at, err := ParseAPIType("GatewayApi")
	require.NoError(t, err)
	assert.Equal(t, GatewayAPI, at)

	_, err = ParseAPIType("CloudApi")
	assert.Error(t, err)
}
