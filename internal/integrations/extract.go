// Package integrations scrapes integration documentation pages into integration records.
package integrations

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// Unknown is recorded when a sidebar value cannot be found.
const Unknown = "Unknown"

var (
	// ErrMissingSidebar marks a page without the integration sidebar.
	ErrMissingSidebar = errors.New("integration sidebar not found")
	// ErrMissingIntro marks a sidebar without its introduction module.
	ErrMissingIntro = errors.New("sidebar introduction not found")
)

var (
	introducedRe = regexp.MustCompile(`introduced in Home Assistant ([\d.]+)`)
	iotClassRe   = regexp.MustCompile(`Its IoT class is (.+?)\.`)
)

// Extract parses one integration page. api is the page's canonical URI.
func Extract(html, api string) (model.Integration, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.Integration{}, fmt.Errorf("parsing %s: %w", api, err)
	}

	sidebar := doc.Find("aside#integration-sidebar").First()
	if sidebar.Length() == 0 {
		return model.Integration{}, ErrMissingSidebar
	}
	intro := sidebar.Find("section.aside-module").First()
	if intro.Length() == 0 {
		return model.Integration{}, ErrMissingIntro
	}
	introText := strings.TrimSpace(intro.Text())

	version := Unknown
	if m := introducedRe.FindStringSubmatch(introText); m != nil {
		version = m[1]
	}
	iotClass := Unknown
	if m := iotClassRe.FindStringSubmatch(introText); m != nil {
		iotClass = m[1]
	}

	content := ""
	if article := doc.Find("article.page").First(); article.Length() > 0 {
		if inner, err := article.Html(); err == nil {
			content = inner
		}
	}

	categories := []string{}
	doc.Find("section#category-module a").Each(func(_ int, a *goquery.Selection) {
		categories = append(categories, strings.TrimSpace(a.Text()))
	})

	return model.NewIntegration(api, version, iotClass, content, categories), nil
}

// Keep returns the integrations with a recognised IoT class and at least one
// recognised category.
func Keep(all []model.Integration) []model.Integration {
	kept := make([]model.Integration, 0, len(all))
	for _, in := range all {
		if in.HasValidIoTClass() && in.HasValidCategory() {
			kept = append(kept, in)
		}
	}
	return kept
}

// PlainText reduces stored page HTML to readable text. It prefers the
// readability extraction and falls back to the document's text nodes.
func PlainText(content, api string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	page := "<html><body><article>" + content + "</article></body></html>"

	pageURL, _ := url.Parse(api)
	if article, err := readability.FromReader(strings.NewReader(page), pageURL); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return collapseSpace(text)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
