package sampler

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghsampler/pkg/github"
	"ghsampler/pkg/ledger"
	"ghsampler/pkg/logger"
	"ghsampler/pkg/store"
	"ghsampler/pkg/stratum"
)

// fakeClient serves scripted search responses keyed by the size bounds
// and order of the request. Multiple queued responses for a key are
// served in order; the last one repeats.
type fakeClient struct {
	searches map[string][]*github.SearchResponse
	pages    map[string]*github.SearchResponse
	files    map[string]*github.FileContent
	fileErrs map[string]error

	searchCalls []string
	fetchCalls  []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		searches: map[string][]*github.SearchResponse{},
		pages:    map[string]*github.SearchResponse{},
		files:    map[string]*github.FileContent{},
		fileErrs: map[string]error{},
	}
}

func searchKey(first, last int, order github.Order) string {
	return fmt.Sprintf("%d-%d-%s", first, last, order)
}

func (f *fakeClient) script(first, last int, order github.Order, resp *github.SearchResponse) {
	key := searchKey(first, last, order)
	f.searches[key] = append(f.searches[key], resp)
}

func (f *fakeClient) SearchCode(ctx context.Context, query string, first, last int, order github.Order) (*github.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := searchKey(first, last, order)
	f.searchCalls = append(f.searchCalls, key)

	queue := f.searches[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("unexpected search %s", key)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.searches[key] = queue[1:]
	}
	return resp, nil
}

func (f *fakeClient) NextPage(ctx context.Context, pageURL string) (*github.SearchResponse, error) {
	resp, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("unexpected page %s", pageURL)
	}
	return resp, nil
}

func (f *fakeClient) FetchFile(ctx context.Context, fileURL string) (*github.FileContent, error) {
	f.fetchCalls = append(f.fetchCalls, fileURL)
	if err, ok := f.fileErrs[fileURL]; ok {
		return nil, err
	}
	file, ok := f.files[fileURL]
	if !ok {
		return nil, fmt.Errorf("unexpected fetch %s", fileURL)
	}
	return file, nil
}

// addFile registers a search item with fetchable file content and
// returns the item.
func (f *fakeClient) addFile(path string, repoID int64, content string) github.SearchItem {
	url := fmt.Sprintf("https://example.test/contents/%d/%s", repoID, path)
	f.files[url] = &github.FileContent{
		Type:     "file",
		Name:     filepath.Base(path),
		Path:     path,
		SHA:      "sha-" + path,
		Size:     int64(len(content)),
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		Encoding: "base64",
	}
	return github.SearchItem{
		Name: filepath.Base(path),
		Path: path,
		URL:  url,
		Repository: github.Repository{
			ID:       repoID,
			Name:     fmt.Sprintf("repo-%d", repoID),
			FullName: fmt.Sprintf("owner/repo-%d", repoID),
			Owner:    github.Owner{ID: repoID * 10, Login: "owner"},
		},
	}
}

type harness struct {
	client  *fakeClient
	store   *store.Store
	ledger  *ledger.Ledger
	path    string
	planner *stratum.Planner
	session *Session
	sampler *Sampler
}

func newHarness(t *testing.T, minSize, maxSize, width int) *harness {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(dir, "stats.csv")
	lg, _, err := ledger.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	client := newFakeClient()
	planner := stratum.NewPlanner(minSize, maxSize, width)
	session := NewSession(minSize, maxSize)

	return &harness{
		client:  client,
		store:   st,
		ledger:  lg,
		path:    path,
		planner: planner,
		session: session,
		sampler: New(client, st, lg, planner, session, "language:go", logger.NewTestLogger()),
	}
}

func (h *harness) replayLedger(t *testing.T) []ledger.Entry {
	t.Helper()
	require.NoError(t, h.ledger.Close())
	reopened, entries, err := ledger.Open(h.path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	return entries
}

func TestSinglePassStratum(t *testing.T) {
	h := newHarness(t, 1, 1, 1)

	a := h.client.addFile("a.go", 1, "package a")
	b := h.client.addFile("b.go", 2, "package b")

	h.client.script(1, 1, github.OrderAsc, &github.SearchResponse{TotalCount: 2, Items: []github.SearchItem{a, b}})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Entry{First: 1, Last: 1, Population: 2, Sampled: 2}, entries[0])

	// Population under the cap: no descending pass.
	for _, call := range h.client.searchCalls {
		assert.NotContains(t, call, "desc")
	}

	n, err := h.store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDualPassWhenPopulationExceedsCap(t *testing.T) {
	h := newHarness(t, 2, 2, 1)

	a := h.client.addFile("a.go", 1, "x")
	b := h.client.addFile("b.go", 2, "y")

	h.client.script(2, 2, github.OrderAsc, &github.SearchResponse{TotalCount: 1500, Items: []github.SearchItem{a}})
	h.client.script(2, 2, github.OrderDesc, &github.SearchResponse{TotalCount: 1600, Items: []github.SearchItem{b}})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	// Population is the larger of the two passes' reports.
	assert.Equal(t, 1600, entries[0].Population)
	assert.Equal(t, 2, entries[0].Sampled)
}

func TestDuplicateIdentityCountedOnceStored(t *testing.T) {
	h := newHarness(t, 3, 3, 1)

	a := h.client.addFile("dup.go", 7, "same file")

	// The same item surfaces in both passes.
	h.client.script(3, 3, github.OrderAsc, &github.SearchResponse{TotalCount: 1200, Items: []github.SearchItem{a}})
	h.client.script(3, 3, github.OrderDesc, &github.SearchResponse{TotalCount: 1200, Items: []github.SearchItem{a}})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Sampled, "both sightings count toward the sample")

	n, err := h.store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the file is stored once")

	assert.Len(t, h.client.fetchCalls, 1, "a known identity is not re-fetched")
}

func TestPerItemFailureCountedAndSkipped(t *testing.T) {
	h := newHarness(t, 1, 1, 1)

	good := h.client.addFile("good.go", 1, "ok")
	bad := h.client.addFile("bad.go", 2, "never fetched")
	h.client.fileErrs[bad.URL] = fmt.Errorf("boom")

	h.client.script(1, 1, github.OrderAsc, &github.SearchResponse{TotalCount: 2, Items: []github.SearchItem{good, bad}})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Sampled)

	n, err := h.store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNonFileItemSkipped(t *testing.T) {
	h := newHarness(t, 1, 1, 1)

	sym := h.client.addFile("link.go", 1, "")
	h.client.files[sym.URL].Type = "symlink"

	h.client.script(1, 1, github.OrderAsc, &github.SearchResponse{TotalCount: 1, Items: []github.SearchItem{sym}})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Sampled)

	n, err := h.store.FileCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestEmptyStratum(t *testing.T) {
	h := newHarness(t, 1, 1, 1)

	h.client.script(1, 1, github.OrderAsc, &github.SearchResponse{TotalCount: 0, Items: nil})

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Entry{First: 1, Last: 1, Population: 0, Sampled: 0}, entries[0])
}

func TestPagination(t *testing.T) {
	h := newHarness(t, 1, 1, 1)

	a := h.client.addFile("a.go", 1, "x")
	b := h.client.addFile("b.go", 2, "y")

	h.client.script(1, 1, github.OrderAsc, &github.SearchResponse{
		TotalCount: 2,
		Items:      []github.SearchItem{a},
		NextPage:   "page-2",
	})
	h.client.pages["page-2"] = &github.SearchResponse{TotalCount: 2, Items: []github.SearchItem{b}}

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Sampled)
}

func TestReplaySkipsCompletedStrata(t *testing.T) {
	h := newHarness(t, 1, 3, 1)

	h.sampler.Replay([]ledger.Entry{
		{First: 1, Last: 1, Population: 5, Sampled: 5},
		{First: 2, Last: 2, Population: 3, Sampled: 3},
	})

	c := h.client.addFile("c.go", 3, "z")
	h.client.script(1, 3, github.OrderAsc, &github.SearchResponse{TotalCount: 9}) // estimate
	h.client.script(3, 3, github.OrderAsc, &github.SearchResponse{TotalCount: 1, Items: []github.SearchItem{c}})

	require.NoError(t, h.sampler.Run(context.Background()))

	// No searches against the replayed strata.
	for _, call := range h.client.searchCalls {
		assert.NotEqual(t, searchKey(1, 1, github.OrderAsc), call)
		assert.NotEqual(t, searchKey(2, 2, github.OrderAsc), call)
	}

	entries := h.replayLedger(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].First)

	snap := h.session.Snapshot()
	assert.Equal(t, 9, snap.TotalSampled, "replayed counts fold into the run total")
	assert.Len(t, snap.Completed, 3)
}

func TestMultiStratumRunCoversWholeRange(t *testing.T) {
	h := newHarness(t, 1, 3, 1)

	// Estimate over the full range.
	h.client.script(1, 3, github.OrderAsc, &github.SearchResponse{TotalCount: 3})

	for i := 1; i <= 3; i++ {
		item := h.client.addFile(fmt.Sprintf("f%d.go", i), int64(i), "x")
		h.client.script(i, i, github.OrderAsc, &github.SearchResponse{TotalCount: 1, Items: []github.SearchItem{item}})
	}

	require.NoError(t, h.sampler.Run(context.Background()))

	entries := h.replayLedger(t)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.First)
		assert.Equal(t, i+1, e.Last)
		assert.Equal(t, 1, e.Sampled)
	}

	snap := h.session.Snapshot()
	assert.Equal(t, 3, snap.TotalSampled)
	assert.Equal(t, 3, snap.EstimatedPopulation)
	assert.Equal(t, "done", snap.Status)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, 1, 3, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.sampler.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	entries := h.replayLedger(t)
	assert.Empty(t, entries, "no stratum is journaled after cancellation")
}
