package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"go.uber.org/goleak"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/engine"
	"github.com/footprintcz/footprint/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCrawler struct {
	mu          sync.Mutex
	callCounts  map[string]int
	failures    map[string]int // attempts that fail before succeeding
	panics      map[string]bool
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeCrawler() *fakeCrawler {
	return &fakeCrawler{
		callCounts: make(map[string]int),
		failures:   make(map[string]int),
		panics:     make(map[string]bool),
	}
}

func (f *fakeCrawler) Crawl(ctx context.Context, site models.Site, mode models.ConsentMode, onProgress engine.ProgressFunc) *models.Observation {
	key := site.Domain + ":" + string(mode)

	f.mu.Lock()
	f.callCounts[key]++
	attempt := f.callCounts[key]
	fails := f.failures[key]
	shouldPanic := f.panics[key]
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if shouldPanic {
		panic("simulated page crash")
	}

	if onProgress != nil {
		onProgress("dwell", "10/60s")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	now := time.Now()
	obs := &models.Observation{
		Site:        site,
		ConsentMode: mode,
		Status:      models.StatusSuccess,
		StartedAt:   now,
		CompletedAt: now,
	}
	if attempt <= fails {
		obs.Status = models.StatusError
		obs.Error = "simulated failure"
	}
	return obs
}

type fakeStore struct {
	mu        sync.Mutex
	siteIDs   map[string]int64
	succeeded map[string]bool
	saved     []*models.Observation
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		siteIDs:   make(map[string]int64),
		succeeded: make(map[string]bool),
	}
}

func (f *fakeStore) UpsertSite(ctx context.Context, site models.Site) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.siteIDs[site.Domain]; ok {
		return id, nil
	}
	id := int64(len(f.siteIDs) + 1)
	f.siteIDs[site.Domain] = id
	return id, nil
}

func (f *fakeStore) HasSuccessfulSession(ctx context.Context, domain string, mode models.ConsentMode) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.succeeded[domain+":"+string(mode)], nil
}

func (f *fakeStore) SaveObservation(ctx context.Context, obs *models.Observation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, obs)
	return int64(len(f.saved)), nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeDisplay struct {
	mu      sync.Mutex
	results []*models.Observation
	active  map[string]string
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{active: make(map[string]string)}
}

func (f *fakeDisplay) UpdateActive(taskKey, phase, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[taskKey] = phase
}

func (f *fakeDisplay) RemoveActive(taskKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, taskKey)
}

func (f *fakeDisplay) PrintResult(obs *models.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, obs)
}

func (f *fakeDisplay) resultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func testConfig(concurrency int) *common.Config {
	cfg := common.Default()
	cfg.Crawler.Concurrency = concurrency
	cfg.Crawler.InterSiteDelayMs = 0
	return cfg
}

func testSites(domains ...string) []models.Site {
	sites := make([]models.Site, 0, len(domains))
	for _, d := range domains {
		sites = append(sites, models.Site{URL: "https://www." + d, Domain: d})
	}
	return sites
}

func newTestScheduler(cfg *common.Config, crawler Crawler, store Store, display Display) *Scheduler {
	s := New(cfg, crawler, store, display, arbor.NewLogger())
	s.retryBackoff = time.Millisecond
	return s
}

func TestRun_CompletesAllTasks(t *testing.T) {
	crawler := newFakeCrawler()
	store := newFakeStore()
	display := newFakeDisplay()
	s := newTestScheduler(testConfig(2), crawler, store, display)

	sites := testSites("idnes.cz", "seznam.cz", "novinky.cz")
	modes := []models.ConsentMode{models.ConsentModeIgnore, models.ConsentModeAccept}

	tasks, skipped, err := BuildTasks(context.Background(), store, sites, modes, false)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, tasks, 6)

	s.Run(context.Background(), tasks)

	assert.Equal(t, 6, store.savedCount())
	assert.Equal(t, 6, display.resultCount())
	for _, obs := range store.saved {
		assert.Equal(t, models.StatusSuccess, obs.Status)
	}
	assert.Empty(t, display.active, "every active entry must be removed")
}

func TestRun_BoundsParallelism(t *testing.T) {
	crawler := newFakeCrawler()
	crawler.delay = 30 * time.Millisecond
	store := newFakeStore()
	s := newTestScheduler(testConfig(2), crawler, store, newFakeDisplay())

	tasks, _, err := BuildTasks(context.Background(), store,
		testSites("a.cz", "b.cz", "c.cz"),
		[]models.ConsentMode{models.ConsentModeIgnore, models.ConsentModeAccept}, false)
	require.NoError(t, err)

	s.Run(context.Background(), tasks)

	assert.LessOrEqual(t, crawler.maxInFlight, 2)
	assert.Equal(t, 6, store.savedCount())
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	crawler := newFakeCrawler()
	crawler.failures["idnes.cz:accept"] = 2
	store := newFakeStore()
	s := newTestScheduler(testConfig(1), crawler, store, newFakeDisplay())

	tasks := []models.Task{{Site: testSites("idnes.cz")[0], Mode: models.ConsentModeAccept}}
	s.Run(context.Background(), tasks)

	assert.Equal(t, 3, crawler.callCounts["idnes.cz:accept"])
	require.Equal(t, 1, store.savedCount())
	assert.Equal(t, models.StatusSuccess, store.saved[0].Status)
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	crawler := newFakeCrawler()
	crawler.failures["broken.cz:ignore"] = 100
	store := newFakeStore()
	cfg := testConfig(1)
	cfg.Crawler.MaxRetries = 2
	s := newTestScheduler(cfg, crawler, store, newFakeDisplay())

	tasks := []models.Task{{Site: testSites("broken.cz")[0], Mode: models.ConsentModeIgnore}}
	s.Run(context.Background(), tasks)

	// max_retries=2 means three attempts total.
	assert.Equal(t, 3, crawler.callCounts["broken.cz:ignore"])
	require.Equal(t, 1, store.savedCount())
	assert.Equal(t, models.StatusError, store.saved[0].Status)
}

func TestRun_StoreFailureDoesNotAbort(t *testing.T) {
	crawler := newFakeCrawler()
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	display := newFakeDisplay()
	s := newTestScheduler(testConfig(2), crawler, store, display)

	tasks, _, err := BuildTasks(context.Background(), store,
		testSites("a.cz", "b.cz"), []models.ConsentMode{models.ConsentModeIgnore}, false)
	require.NoError(t, err)

	s.Run(context.Background(), tasks)

	// Every task still completes and reports a result.
	assert.Equal(t, 2, display.resultCount())
}

func TestRun_PanickingTaskDoesNotAbortRun(t *testing.T) {
	crawler := newFakeCrawler()
	crawler.panics["bad.cz:ignore"] = true
	store := newFakeStore()
	display := newFakeDisplay()
	s := newTestScheduler(testConfig(2), crawler, store, display)

	tasks, _, err := BuildTasks(context.Background(), store,
		testSites("bad.cz", "a.cz", "b.cz"),
		[]models.ConsentMode{models.ConsentModeIgnore}, false)
	require.NoError(t, err)

	s.Run(context.Background(), tasks)

	// The panicking task is dropped; the others complete and persist.
	require.Equal(t, 2, store.savedCount())
	for _, obs := range store.saved {
		assert.NotEqual(t, "bad.cz", obs.Site.Domain)
		assert.Equal(t, models.StatusSuccess, obs.Status)
	}
	assert.Equal(t, 2, display.resultCount())
}

func TestRun_CancelledContextStartsNothing(t *testing.T) {
	crawler := newFakeCrawler()
	store := newFakeStore()
	s := newTestScheduler(testConfig(2), crawler, store, newFakeDisplay())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []models.Task{{Site: testSites("a.cz")[0], Mode: models.ConsentModeIgnore}}
	s.Run(ctx, tasks)

	assert.Empty(t, crawler.callCounts)
	assert.Zero(t, store.savedCount())
}

func TestBuildTasks_SiteThenModeOrder(t *testing.T) {
	store := newFakeStore()

	sites := testSites("a.cz", "b.cz")
	modes := []models.ConsentMode{models.ConsentModeIgnore, models.ConsentModeAccept, models.ConsentModeReject}

	tasks, _, err := BuildTasks(context.Background(), store, sites, modes, false)
	require.NoError(t, err)

	keys := make([]string, 0, len(tasks))
	for _, task := range tasks {
		keys = append(keys, task.Key())
	}
	assert.Equal(t, []string{
		"a.cz:ignore", "a.cz:accept", "a.cz:reject",
		"b.cz:ignore", "b.cz:accept", "b.cz:reject",
	}, keys)
}

func TestBuildTasks_ResumeSkipsSuccessful(t *testing.T) {
	store := newFakeStore()
	store.succeeded["a.cz:accept"] = true

	sites := testSites("a.cz", "b.cz")
	modes := []models.ConsentMode{models.ConsentModeIgnore, models.ConsentModeAccept}

	tasks, skipped, err := BuildTasks(context.Background(), store, sites, modes, true)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.NotEqual(t, "a.cz:accept", task.Key())
	}

	// Without resume the same store skips nothing.
	tasks, skipped, err = BuildTasks(context.Background(), store, sites, modes, false)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, tasks, 4)
}

// Re-running over a fully crawled set must produce zero tasks.
func TestBuildTasks_ResumeIdempotent(t *testing.T) {
	store := newFakeStore()
	crawler := newFakeCrawler()
	display := newFakeDisplay()
	s := newTestScheduler(testConfig(2), crawler, store, display)

	sites := testSites("a.cz", "b.cz")
	modes := []models.ConsentMode{models.ConsentModeIgnore, models.ConsentModeAccept}

	tasks, _, err := BuildTasks(context.Background(), store, sites, modes, true)
	require.NoError(t, err)
	s.Run(context.Background(), tasks)
	require.Equal(t, 4, store.savedCount())

	// Mark everything successful, as the real store would.
	store.mu.Lock()
	for _, obs := range store.saved {
		store.succeeded[obs.Site.Domain+":"+string(obs.ConsentMode)] = true
	}
	store.mu.Unlock()

	tasks, skipped, err := BuildTasks(context.Background(), store, sites, modes, true)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 4, skipped)
}
