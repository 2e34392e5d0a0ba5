package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/apichanges/internal/model"
)

func page(name, iotClass, category string) string {
	return fmt.Sprintf(`<html><head><title>%[1]s</title></head><body>
<article class="page"><h1>%[1]s</h1><p>The %[1]s integration lets you control lights over the bridge.</p></article>
<aside id="integration-sidebar">
  <section class="aside-module"><p>The %[1]s integration was introduced in Home Assistant 0.60,
  and it's used by 5%% of active installations. Its IoT class is <a href="#">%[2]s</a>.</p></section>
  <section id="category-module" class="aside-module"><a href="/integrations/#x">%[3]s</a></section>
</aside></body></html>`, name, iotClass, category)
}

func TestExtract(t *testing.T) {
	in, err := Extract(page("Philips Hue", "Local Push", "Light"), "https://www.home-assistant.io/integrations/hue")
	require.NoError(t, err)

	assert.Equal(t, "https://www.home-assistant.io/integrations/hue", in.API)
	assert.Equal(t, "0.60", in.IntroductionVersion)
	assert.Equal(t, "Local Push", in.IoTClass)
	assert.Equal(t, []string{"Light"}, in.Categories)
	assert.Contains(t, in.Content, "<h1>Philips Hue</h1>")
	assert.Equal(t, "Local", in.DeploymentType)
	assert.Equal(t, "Push", in.CommunicationMechanism)
}

func TestExtractDefaultsToUnknown(t *testing.T) {
	html := `<aside id="integration-sidebar"><section class="aside-module">No details.</section></aside>`
	in, err := Extract(html, "https://example.test/integrations/x")
	require.NoError(t, err)

	assert.Equal(t, Unknown, in.IntroductionVersion)
	assert.Equal(t, Unknown, in.IoTClass)
	assert.Empty(t, in.Content)
	assert.Empty(t, in.Categories)
}

func TestExtractMissingStructure(t *testing.T) {
	_, err := Extract(`<html><body><p>Not an integration</p></body></html>`, "u")
	assert.ErrorIs(t, err, ErrMissingSidebar)

	_, err = Extract(`<aside id="integration-sidebar"><div>empty</div></aside>`, "u")
	assert.ErrorIs(t, err, ErrMissingIntro)
}

func TestKeep(t *testing.T) {
	all := []model.Integration{
		model.NewIntegration("a", "1", "Cloud Polling", "", []string{"Sensor"}),
		model.NewIntegration("b", "1", "Assumed State", "", []string{"Sensor"}),
		model.NewIntegration("c", "1", "Local Push", "", []string{"Utility"}),
		model.NewIntegration("d", "1", "Local Push", "", []string{"Utility", "Light"}),
	}
	kept := Keep(all)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].API)
	assert.Equal(t, "d", kept[1].API)
}

func TestPlainText(t *testing.T) {
	assert.Empty(t, PlainText("  ", "https://example.test/x"))

	text := PlainText("<p>Hello   <b>world</b></p>", "https://example.test/x")
	assert.Contains(t, text, "world")
	assert.NotContains(t, text, "<b>")
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"url": "integrations/hue"}, {"url": "/integrations/zha/"}, {"url": ""}]`), 0o644))

	urls, err := LoadIndex(path, "https://www.home-assistant.io/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.home-assistant.io/integrations/hue",
		"https://www.home-assistant.io/integrations/zha/",
	}, urls)
	assert.Equal(t, "https://www.home-assistant.io/integrations/zha", CanonicalAPI(urls[1]))
}

func TestScrape(t *testing.T) {
	var robotsHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&robotsHits, 1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/integrations/hue/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page("Philips Hue", "Local Push", "Light"))
	})
	mux.HandleFunc("/integrations/cloudy/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page("Cloudy", "Cloud Polling", "Weather"))
	})
	mux.HandleFunc("/integrations/helper/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page("Helper", "Calculated", "Utility"))
	})
	mux.HandleFunc("/integrations/bare/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>moved</body></html>")
	})
	mux.HandleFunc("/integrations/gone/", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/private/secret/", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("robots.txt disallowed path was fetched")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewScraper(Options{UserAgent: "apichanges-test"})
	pages := []string{
		srv.URL + "/integrations/hue/",
		srv.URL + "/integrations/cloudy/",
		srv.URL + "/integrations/helper/",
		srv.URL + "/integrations/bare/",
		srv.URL + "/integrations/gone/",
		srv.URL + "/private/secret/",
	}

	kept, report, err := s.Scrape(context.Background(), pages)
	require.NoError(t, err)

	assert.Equal(t, Report{Fetched: 3, Structure: 1, Failed: 1, Disallowed: 1, Kept: 2}, report)
	require.Len(t, kept, 2)
	assert.Equal(t, srv.URL+"/integrations/hue", kept[0].API)
	assert.Equal(t, "Cloud", kept[1].DeploymentType)
	assert.Equal(t, int32(1), atomic.LoadInt32(&robotsHits))
}

func TestScrapeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewScraper(Options{}).Scrape(ctx, []string{"http://127.0.0.1:1/integrations/x"})
	assert.ErrorIs(t, err, context.Canceled)
}
