package model

// IssueResults is the shape of the prefiltered issue file.
type IssueResults struct {
	SearchResults []Issue `json:"search_results"`
}

// IssueDocument is the shape of the joined and classified issue files.
type IssueDocument struct {
	Issues []Issue `json:"issues"`
}

// IntegrationResults is the shape of the integration files.
type IntegrationResults struct {
	SearchResults []Integration `json:"search_results"`
}
