// Package report summarizes classified issues: label distribution and how
// the reviewer's annotations line up with the machine verdicts.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/apichanges/internal/model"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// LabelCount is the number of issues carrying one taxonomy label.
type LabelCount struct {
	Label    model.Label `json:"label"`
	Category string      `json:"category"`
	Count    int         `json:"count"`
}

// CategoryCount is the number of issues with at least one label in a category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Report is the summary of one classified document.
type Report struct {
	Issues       int             `json:"issues"`
	Classified   int             `json:"classified"`
	Labeled      int             `json:"labeled"`
	Unknown      int             `json:"unknown"`
	Unclassified int             `json:"unclassified"`
	Labels       []LabelCount    `json:"labels"`
	Categories   []CategoryCount `json:"categories"`

	// Reviewer annotations. Agreements counts annotated issues where the
	// reviewer's call matches the machine: labeled and confirmed, or Unknown
	// and rejected.
	Annotated  int `json:"annotated"`
	Confirmed  int `json:"confirmed"`
	Rejected   int `json:"rejected"`
	Agreements int `json:"agreements"`
}

var categoryOf = func() map[model.Label]string {
	m := make(map[model.Label]string)
	for _, c := range model.Taxonomy {
		for _, l := range c.Leaves {
			m[l.Label] = c.Name
		}
	}
	return m
}()

// Build computes the report for issues.
func Build(issues []model.Issue) Report {
	r := Report{Issues: len(issues)}
	labels := make(map[model.Label]int)
	categories := make(map[string]int)

	for _, issue := range issues {
		if issue.Verdict == nil {
			r.Unclassified++
		} else {
			r.Classified++
			if issue.Verdict.IsUnknown() {
				r.Unknown++
			} else {
				r.Labeled++
			}
			seenLabel := make(map[model.Label]bool)
			seenCategory := make(map[string]bool)
			for _, l := range issue.Verdict.Labels() {
				if l == model.Unknown || seenLabel[l] {
					continue
				}
				seenLabel[l] = true
				labels[l]++
				if c := categoryOf[l]; c != "" && !seenCategory[c] {
					seenCategory[c] = true
					categories[c]++
				}
			}
		}

		if issue.AuthorAnnotation == nil {
			continue
		}
		r.Annotated++
		if issue.AuthorAnnotation.IsAPIChange {
			r.Confirmed++
		} else {
			r.Rejected++
		}
		if issue.Verdict != nil && issue.AuthorAnnotation.IsAPIChange == !issue.Verdict.IsUnknown() {
			r.Agreements++
		}
	}

	r.Labels = make([]LabelCount, 0, len(labels))
	for _, l := range model.Labels() {
		if n := labels[l]; n > 0 {
			r.Labels = append(r.Labels, LabelCount{Label: l, Category: categoryOf[l], Count: n})
		}
	}
	sort.SliceStable(r.Labels, func(i, j int) bool { return r.Labels[i].Count > r.Labels[j].Count })

	r.Categories = make([]CategoryCount, 0, len(categories))
	for _, c := range model.Taxonomy {
		if n := categories[c.Name]; n > 0 {
			r.Categories = append(r.Categories, CategoryCount{Category: c.Name, Count: n})
		}
	}
	sort.SliceStable(r.Categories, func(i, j int) bool { return r.Categories[i].Count > r.Categories[j].Count })

	return r
}

// AgreementRate is the share of annotated, classified issues where reviewer
// and machine agree, or 0 without annotations.
func (r Report) AgreementRate() float64 {
	if r.Annotated == 0 {
		return 0
	}
	return float64(r.Agreements) / float64(r.Annotated)
}

// Markdown renders the report.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# API change classification\n\n")
	fmt.Fprintf(&b, "- Issues: %d\n", r.Issues)
	fmt.Fprintf(&b, "- Classified: %d (%d labeled, %d Unknown)\n", r.Classified, r.Labeled, r.Unknown)
	fmt.Fprintf(&b, "- Not yet classified: %d\n", r.Unclassified)

	if len(r.Categories) > 0 {
		b.WriteString("\n## Categories\n\n| Category | Issues |\n|---|---:|\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "| %s | %d |\n", c.Category, c.Count)
		}
	}

	if len(r.Labels) > 0 {
		b.WriteString("\n## Labels\n\n| Label | Category | Issues |\n|---|---|---:|\n")
		for _, l := range r.Labels {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", l.Label, l.Category, l.Count)
		}
	}

	b.WriteString("\n## Review\n\n")
	if r.Annotated == 0 {
		b.WriteString("No issues annotated yet.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- Annotated: %d (%d confirmed, %d rejected)\n", r.Annotated, r.Confirmed, r.Rejected)
	fmt.Fprintf(&b, "- Agreement with classifier: %d of %d (%.0f%%)\n", r.Agreements, r.Annotated, 100*r.AgreementRate())
	return b.String()
}

// HTML renders the Markdown report as an HTML fragment.
func (r Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(r.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return buf.String(), nil
}
