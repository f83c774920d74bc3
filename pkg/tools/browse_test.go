package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/browser"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/timeline"
)

func newTestBrowserPipeline(search browser.SearchFunc) *browser.Pipeline {
	return browser.NewPipeline(browser.NewHTTPDriver(), browser.NewBasicDriver(), browser.Options{
		UserAgents:           []string{"test-agent"},
		AntiScrapingPatterns: []string{"verify you are human"},
		NavTimeout:           2 * time.Second,
		MaxSessions:          2,
		Search:               search,
	})
}

func TestBrowseTool_FetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Doc</title></head><body><p>plain page body text</p></body></html>`)
	}))
	defer srv.Close()

	p := newTestBrowserPipeline(nil)
	defer p.Close()
	d := newDispatcherWith(t, NewBrowseTool(p))

	store := timeline.New("conv-1")
	inv := &Invocation{ConversationID: "conv-1", Timeline: store, Registry: d.Registry()}

	res := d.Dispatch(context.Background(), inv, BrowseName,
		map[string]any{"url": srv.URL}, DispatchOptions{})
	require.False(t, res.IsError(), res.Error)
	assert.Contains(t, res.Output, "plain page body text")

	browses := store.GetEvents(timeline.EventFilter{Type: models.EventTypeWebBrowse})
	require.Len(t, browses, 1)
	assert.Equal(t, models.StatusSuccess, browses[0].Status)
	assert.Equal(t, srv.URL, browses[0].Metadata["url"])
	assert.NotNil(t, browses[0].Metadata["attempts"])
}

func TestBrowseTool_EmptyURL(t *testing.T) {
	p := newTestBrowserPipeline(nil)
	defer p.Close()
	d := newDispatcherWith(t, NewBrowseTool(p))

	res := d.Dispatch(context.Background(), nil, BrowseName,
		map[string]any{"url": "  "}, DispatchOptions{})
	assert.True(t, res.IsError())
}

func TestCollectTool_RequiresBrowse(t *testing.T) {
	p := newTestBrowserPipeline(nil)
	defer p.Close()
	d := newDispatcherWith(t, NewCollectTool(p))

	res := d.Dispatch(context.Background(), nil, CollectName,
		map[string]any{"url": "https://example.com", "query": "q"},
		DispatchOptions{CheckDeps: true})
	require.True(t, res.IsError())
	assert.Contains(t, res.Error, "missing dependencies")
	assert.Contains(t, res.Error, BrowseName)
}

func TestCollectTool_CollectsFromSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>index<a href="/pricing">Pricing details</a></body></html>`)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>pricing starts at ten dollars monthly</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestBrowserPipeline(nil)
	defer p.Close()
	d := newDispatcherWith(t, NewBrowseTool(p), NewCollectTool(p))

	res := d.Dispatch(context.Background(), nil, CollectName,
		map[string]any{"url": srv.URL, "query": "pricing dollars"},
		DispatchOptions{CheckDeps: true})
	require.False(t, res.IsError(), res.Error)
	assert.Contains(t, res.Output, "pricing starts at ten dollars")
}
