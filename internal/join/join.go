// Package join restricts issues and integrations to their mutual references.
package join

import (
	"strings"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// TagPrefix marks tags naming an integration, e.g. "integration: hue".
const TagPrefix = "integration:"

// Joiner maps integration tags onto integration URIs under a base URL.
type Joiner struct {
	baseURL string
}

// New returns a joiner that maps "integration: <name>" to baseURL + name.
func New(baseURL string) *Joiner {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Joiner{baseURL: baseURL}
}

// APIs derives the integration URIs an issue's tags refer to, in tag order
// without duplicates.
func (j *Joiner) APIs(tags []string) []string {
	var apis []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		rest, ok := strings.CutPrefix(tag, TagPrefix)
		if !ok {
			continue
		}
		name := strings.TrimSpace(rest)
		if name == "" {
			continue
		}
		api := j.baseURL + name
		if _, dup := seen[api]; dup {
			continue
		}
		seen[api] = struct{}{}
		apis = append(apis, api)
	}
	return apis
}

// Result is the joined view of both sides.
type Result struct {
	Issues       []model.Issue
	Integrations []model.Integration
}

// Join keeps the issues whose tags reference at least one known integration,
// annotating each with the known integrations it references, and keeps the
// integrations referenced by at least one kept issue. Tags naming unknown
// integrations are ignored. Input order is preserved on both sides.
func (j *Joiner) Join(issues []model.Issue, integrations []model.Integration) Result {
	known := make(map[string]struct{}, len(integrations))
	for _, in := range integrations {
		known[in.API] = struct{}{}
	}

	result := Result{Issues: []model.Issue{}, Integrations: []model.Integration{}}
	referenced := make(map[string]struct{})
	for _, issue := range issues {
		var involved []string
		for _, api := range j.APIs(issue.Tags) {
			if _, ok := known[api]; ok {
				involved = append(involved, api)
			}
		}
		if len(involved) == 0 {
			continue
		}
		joined := issue
		joined.InvolvedAPIs = involved
		result.Issues = append(result.Issues, joined)
		for _, api := range involved {
			referenced[api] = struct{}{}
		}
	}

	for _, in := range integrations {
		if _, ok := referenced[in.API]; ok {
			result.Integrations = append(result.Integrations, in)
			delete(referenced, in.API)
		}
	}
	return result
}
