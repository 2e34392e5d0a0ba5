package classify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/apichanges/internal/model"
)

const taxonomySystemPrompt = `You analyze software issue discussions from an IoT home automation project and decide which kinds of API change they describe.

Classify the content into one or more leaf categories of the taxonomy below. A leaf category is one without more detailed categories beneath it.

## Taxonomy of IoT API changes

%s
## Requirements
- "class_type" must be one of the leaf category names above, spelled exactly, or "Unknown".
- Use "Unknown" when the content is ambiguous or does not describe an API change.
- "confidence" is a number between 0 and 1.
- "explanation" is one or two sentences referring to the content.
- Answer with a JSON object only.`

const contentPrompt = `## Content to analyze:
### Title: %s
### Body:
%s
### Comments:
%s
`

const apiTypeSystemPrompt = `You classify the API an IoT integration talks to into one of four types: DeviceApi, GatewayApi, PlatformApi or UnknownApi.`

const apiTypePrompt = `Classify the API described by this integration documentation.

1. DeviceApi: direct communication with a single device, device-specific protocols or local network access to the device itself.
2. GatewayApi: communication through a hub, bridge or gateway device, usually inside one vendor's ecosystem.
3. PlatformApi: a shared API serving many devices, often across vendors, typically a cloud service with OAuth or REST.
4. UnknownApi: none of the above applies.

"confidence" is a number between 0 and 1. "explanation" briefly cites the documentation.

Documentation:
%s
`

// SystemPrompt is the instruction sent with every issue classification.
func SystemPrompt() string {
	return fmt.Sprintf(taxonomySystemPrompt, model.DescribeTaxonomy())
}

// IssuePrompt renders issue content for the oracle.
func IssuePrompt(title, body string, comments []string) string {
	return fmt.Sprintf(contentPrompt, title, body, strings.Join(comments, "\n"))
}

var (
	verdictSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"api_taxonomy_classes": map[string]any{
				"type": "array",
				"items": object(map[string]any{
					"class_type":  map[string]any{"type": "string", "enum": model.Labels()},
					"confidence":  map[string]any{"type": "number"},
					"explanation": map[string]any{"type": "string"},
				}),
			},
		},
		"required":             []string{"api_taxonomy_classes"},
		"additionalProperties": false,
	})

	apiTypeSchema = mustSchema(object(map[string]any{
		"api_type":    map[string]any{"type": "string", "enum": model.APITypes},
		"confidence":  map[string]any{"type": "number"},
		"explanation": map[string]any{"type": "string"},
	}))
)

// object builds a strict object schema requiring every property.
func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func mustSchema(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding schema: %v", err))
	}
	return data
}
