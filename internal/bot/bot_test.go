package bot

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/womstats/internal/chat"
	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

const richBoysBody = `{"id":1,"name":"Rich Boys","description":"test","memberships":[{"player":{"id":1,"displayName":"Zezima","ehb":120.5}}]}`

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubAPI struct {
	calls atomic.Int32

	mu   sync.Mutex
	code int
	body string
	gate chan struct{} // when set, requests block until it is closed
	urls []string
}

func (s *stubAPI) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)

	s.mu.Lock()
	gate := s.gate
	code, body := s.code, s.body
	s.urls = append(s.urls, req.URL.String())
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if code == 0 {
		code = http.StatusOK
	}
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (s *stubAPI) set(code int, body string) {
	s.mu.Lock()
	s.code, s.body = code, body
	s.mu.Unlock()
}

func (s *stubAPI) lastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.urls) == 0 {
		return ""
	}
	return s.urls[len(s.urls)-1]
}

// liveConfig is a ConfigSource whose values change between fetches.
type liveConfig struct {
	mu     sync.Mutex
	values map[string]string
}

func (l *liveConfig) GetString(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values[key]
}

func (l *liveConfig) Set(key, value string) {
	l.mu.Lock()
	l.values[key] = value
	l.mu.Unlock()
}

type harness struct {
	bot   *WOMBot
	api   *stubAPI
	clock *fakeClock
	out   *chat.Recorder
}

func newHarness(t *testing.T, opts Options, conf ConfigSource, tracker *ranks.Tracker) *harness {
	t.Helper()
	api := &stubAPI{body: richBoysBody}
	clock := newFakeClock()
	out := chat.NewRecorder(100)
	if conf == nil {
		conf = StaticConfig{KeyGroupID: "139"}
	}
	b := New(Deps{
		API:     womapi.NewClient(womapi.WithTransport(api), womapi.WithBaseURL("http://wom.test")),
		Config:  conf,
		Sink:    out,
		Clock:   clock,
		Tracker: tracker,
	}, opts)
	t.Cleanup(b.Stop)
	return &harness{bot: b, api: api, clock: clock, out: out}
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete")
	}
}

func TestRefresh_EmitsSummary(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)

	wait(t, h.bot.Refresh())

	assert.Equal(t, []string{"Group: Rich Boys has 1 members!"}, h.out.Lines())
	assert.Equal(t, "http://wom.test/groups/139", h.api.lastURL())
}

func TestRefresh_VerboseSummary(t *testing.T) {
	h := newHarness(t, Options{Verbose: true}, nil, nil)

	wait(t, h.bot.Refresh())

	assert.Equal(t, []string{
		"Group Name: Rich Boys",
		"Group Description: test",
		"Number of Members: 1",
	}, h.out.Lines())
}

func TestRefresh_MissingGroupID(t *testing.T) {
	h := newHarness(t, Options{}, StaticConfig{}, nil)

	wait(t, h.bot.Refresh())

	assert.Equal(t, []string{"Please configure your Wise Old Man group ID in the settings."}, h.out.Lines())
	assert.Zero(t, h.api.calls.Load())
}

func TestRefresh_FailuresEmitOneLine(t *testing.T) {
	cases := []struct {
		code int
		body string
		want string
	}{
		{http.StatusNotFound, `{"message":"Group not found."}`, "Failed to fetch data. Response code: 404"},
		{http.StatusInternalServerError, ``, "Failed to fetch data. Response code: 500"},
		{http.StatusOK, `not json`, "Error parsing response from Wise Old Man API."},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			h := newHarness(t, Options{}, nil, nil)
			h.api.set(tc.code, tc.body)

			wait(t, h.bot.Refresh())

			assert.Equal(t, []string{tc.want}, h.out.Lines())
		})
	}
}

func TestRefresh_ReadsConfigPerFetch(t *testing.T) {
	conf := &liveConfig{values: map[string]string{KeyGroupID: "1"}}
	h := newHarness(t, Options{}, conf, nil)

	wait(t, h.bot.Refresh())
	assert.Equal(t, "http://wom.test/groups/1", h.api.lastURL())

	conf.Set(KeyGroupID, "2")
	conf.Set(KeyAPIKey, "secret")
	wait(t, h.bot.Refresh())
	assert.Equal(t, "http://wom.test/groups/2?x-api-key=secret", h.api.lastURL())
}

func TestTick_FetchesWhenIntervalElapsed(t *testing.T) {
	h := newHarness(t, Options{Interval: 120 * time.Second}, nil, nil)

	h.clock.Advance(119 * time.Second)
	h.bot.Tick()
	assert.Zero(t, h.api.calls.Load())

	h.clock.Advance(time.Second)
	h.bot.Tick()
	require.Eventually(t, func() bool { return len(h.out.Lines()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), h.api.calls.Load())
	assert.Equal(t, h.clock.Now(), h.bot.LastAttempt())
}

func TestTick_ManualRefreshResetsInterval(t *testing.T) {
	h := newHarness(t, Options{Interval: 120 * time.Second}, nil, nil)

	h.clock.Advance(100 * time.Second)
	wait(t, h.bot.Refresh())

	h.clock.Advance(100 * time.Second)
	h.bot.Tick()
	assert.Equal(t, int32(1), h.api.calls.Load())

	h.clock.Advance(20 * time.Second)
	h.bot.Tick()
	require.Eventually(t, func() bool { return h.api.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRefresh_OverlapWithoutSingleFlight(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	gate := make(chan struct{})
	h.api.mu.Lock()
	h.api.gate = gate
	h.api.mu.Unlock()

	first := h.bot.Refresh()
	second := h.bot.Refresh()
	require.Eventually(t, func() bool { return h.api.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, h.bot.InFlight())

	close(gate)
	wait(t, first)
	wait(t, second)
	assert.Len(t, h.out.Lines(), 2)
	assert.Zero(t, h.bot.InFlight())
}

func TestRefresh_SingleFlightSkipsTrigger(t *testing.T) {
	h := newHarness(t, Options{SingleFlight: true}, nil, nil)
	gate := make(chan struct{})
	h.api.mu.Lock()
	h.api.gate = gate
	h.api.mu.Unlock()

	first := h.bot.Refresh()
	skipped := h.bot.Refresh()
	wait(t, skipped)

	close(gate)
	wait(t, first)
	assert.Equal(t, int32(1), h.api.calls.Load())
	assert.Len(t, h.out.Lines(), 1)
}

func TestRefresh_AnnouncesPromotion(t *testing.T) {
	table, err := ranks.NewTable(map[string]string{"0-100": "Bronze", "100-200": "Silver", "200+": "Gold"})
	require.NoError(t, err)
	tracker := ranks.NewTracker(table, nil, nil)
	h := newHarness(t, Options{Announce: true}, nil, tracker)

	wait(t, h.bot.Refresh())
	h.api.set(http.StatusOK, strings.Replace(richBoysBody, "120.5", "201.257", 1))
	wait(t, h.bot.Refresh())

	assert.Equal(t, []string{
		"Group: Rich Boys has 1 members!",
		"Group: Rich Boys has 1 members!",
		"🎉 Congratulations Zezima on moving up to the rank of Gold with 201.26 EHB! 🎉",
	}, h.out.Lines())
}

func TestPostRanking(t *testing.T) {
	table, err := ranks.NewTable(map[string]string{"0-100": "Bronze", "100+": "Silver"})
	require.NoError(t, err)
	h := newHarness(t, Options{}, nil, ranks.NewTracker(table, nil, nil))

	wait(t, h.bot.PostRanking())

	lines := h.out.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "**Rich Boys Ranking on 2024-05-01 12:00**")
	assert.Contains(t, lines[0], "Zezima")
	assert.Contains(t, lines[0], "Silver")
}

func TestStart_OnStartFetchOnly(t *testing.T) {
	h := newHarness(t, Options{OnStart: true}, nil, nil)

	require.NoError(t, h.bot.Start())
	require.Eventually(t, func() bool { return len(h.out.Lines()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, h.bot.Start())
}

func TestStart_PollsOnTick(t *testing.T) {
	h := newHarness(t, Options{PollEnabled: true, Interval: time.Minute, Tick: 20 * time.Millisecond}, nil, nil)

	require.NoError(t, h.bot.Start())
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, h.api.calls.Load())

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.api.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.bot.Stop()
	assert.Zero(t, h.bot.InFlight())
}

func TestStop_LaterTriggersAreIgnored(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.bot.Stop()

	wait(t, h.bot.Refresh())
	wait(t, h.bot.PostSummary())
	wait(t, h.bot.UpdateAll())
	require.NoError(t, h.bot.HandleCommand("!ranking"))

	assert.Zero(t, h.api.calls.Load())
	assert.Empty(t, h.out.Lines())
}

func TestStop_ConcurrentCommands(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = h.bot.HandleCommand("!refresh")
			}
		}()
	}
	h.bot.Stop()
	wg.Wait()
	assert.Zero(t, h.bot.InFlight())
}

func TestPostSummary(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)

	wait(t, h.bot.PostSummary())

	assert.Equal(t, []string{
		"Group Name: Rich Boys",
		"Group Description: test",
		"Number of Members: 1",
	}, h.out.Lines())
}

func TestEnableHotkey_NotRunningUntilInstalled(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	assert.False(t, h.bot.HotkeyRunning())

	h.bot.EnableHotkey()
	assert.False(t, h.bot.HotkeyRunning())
}

func TestStart_ScheduledUpdateAllNeedsCode(t *testing.T) {
	conf := &liveConfig{values: map[string]string{KeyGroupID: "139"}}
	h := newHarness(t, Options{}, conf, nil)

	h.bot.scheduledUpdateAll()
	assert.Zero(t, h.api.calls.Load())

	conf.Set(KeyVerificationCode, "123-456-789")
	h.api.set(http.StatusOK, `{"count":2}`)
	h.bot.scheduledUpdateAll()

	assert.Equal(t, int32(1), h.api.calls.Load())
	assert.Equal(t, []string{"✅ Successfully refreshed group data. 2 members updated."}, h.out.Lines())
}

func TestStart_SchedulesUpdateAll(t *testing.T) {
	conf := &liveConfig{values: map[string]string{KeyGroupID: "139", KeyVerificationCode: "c"}}
	h := newHarness(t, Options{PollEnabled: true, Interval: 10 * time.Millisecond, Tick: time.Hour, UpdateAllEvery: 3}, conf, nil)
	h.api.set(http.StatusOK, `{"count":1}`)

	require.NoError(t, h.bot.Start())
	require.Eventually(t, func() bool {
		return strings.HasSuffix(h.api.lastURL(), "/update-all")
	}, 2*time.Second, 10*time.Millisecond)
}
