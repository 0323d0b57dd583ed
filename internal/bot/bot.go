package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/EgorLis/womstats/internal/chat"
	"github.com/EgorLis/womstats/internal/hotkey"
	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

// Clock is the time source; tests swap it for a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	PollEnabled    bool
	Interval       time.Duration // time between attempts, from the last attempt
	Tick           time.Duration // how often "is a fetch due?" is checked
	OnStart        bool
	SingleFlight   bool // skip triggers while a fetch is running
	UpdateAllEvery int  // group update-all every N intervals, 0 = never
	Verbose        bool // three-line summary instead of one line
	Announce       bool // post rank promotions
	Hotkey         bool
}

// Deps are the collaborators injected at construction.
type Deps struct {
	API     *womapi.Client
	Config  ConfigSource
	Sink    chat.Sink
	Clock   Clock
	Ranks   *ranks.Table   // nil = default-less "Unknown" ranks
	Tracker *ranks.Tracker // nil = no rank tracking
}

type WOMBot struct {
	api     *womapi.Client
	conf    ConfigSource
	sink    chat.Sink
	clock   Clock
	table   *ranks.Table
	tracker *ranks.Tracker
	opts    Options

	hook *hotkey.Hook

	mu          sync.Mutex
	lastAttempt time.Time
	started     bool
	sched       *gocron.Scheduler
	ctx         context.Context
	cancel      context.CancelFunc

	inFlight atomic.Int32
	wg       sync.WaitGroup
}

func New(deps Deps, opts Options) *WOMBot {
	if deps.API == nil {
		deps.API = womapi.NewClient()
	}
	if deps.Config == nil {
		deps.Config = StaticConfig{}
	}
	if deps.Sink == nil {
		deps.Sink = chat.LogSink{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Ranks == nil && deps.Tracker != nil {
		deps.Ranks = deps.Tracker.Table()
	}
	if opts.Interval <= 0 {
		opts.Interval = 120 * time.Second
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WOMBot{
		api:         deps.API,
		conf:        deps.Config,
		sink:        deps.Sink,
		clock:       deps.Clock,
		table:       deps.Ranks,
		tracker:     deps.Tracker,
		opts:        opts,
		lastAttempt: deps.Clock.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// EnableHotkey binds volume-up to a refresh, volume-down to the ranking
// board and mute to the detailed summary. The hook is installed by Start.
func (bot *WOMBot) EnableHotkey() {
	bot.hook = hotkey.New(
		func() {
			logrus.Debugln("Refresh hotkey pressed")
			bot.Refresh()
		},
		func() {
			logrus.Debugln("Ranking hotkey pressed")
			bot.PostRanking()
		},
		hotkey.WithMute(func() {
			logrus.Debugln("Summary hotkey pressed")
			bot.PostSummary()
		}),
	)
}

// HotkeyRunning reports whether the media key hook is installed.
func (bot *WOMBot) HotkeyRunning() bool {
	return bot.hook != nil && bot.hook.Running()
}

// Start runs the start-up fetch (if enabled) and the periodic poll.
func (bot *WOMBot) Start() error {
	bot.mu.Lock()
	if bot.started {
		bot.mu.Unlock()
		return errors.New("already started")
	}
	bot.started = true

	if bot.opts.PollEnabled {
		s := gocron.NewScheduler(time.UTC)
		s.SingletonModeAll()
		s.WaitForScheduleAll()
		if _, err := s.Every(bot.opts.Tick).Do(bot.Tick); err != nil {
			bot.started = false
			bot.mu.Unlock()
			return err
		}
		if bot.opts.UpdateAllEvery > 0 {
			every := bot.opts.Interval * time.Duration(bot.opts.UpdateAllEvery)
			if _, err := s.Every(every).Do(bot.scheduledUpdateAll); err != nil {
				bot.started = false
				bot.mu.Unlock()
				return err
			}
		}
		s.StartAsync()
		bot.sched = s
	}
	bot.mu.Unlock()

	if bot.hook != nil {
		if err := bot.hook.Start(); err != nil {
			logrus.WithError(err).Warnln("Media key hook not started")
		}
	}

	logrus.WithFields(logrus.Fields{
		"api":      bot.api.BaseURL(),
		"poll":     bot.opts.PollEnabled,
		"interval": bot.opts.Interval,
		"on_start": bot.opts.OnStart,
		"hotkey":   bot.HotkeyRunning(),
	}).Infoln("WOM bot started")

	if bot.opts.OnStart {
		bot.Refresh()
	}
	return nil
}

// Stop halts polling, cancels outstanding requests and waits for their
// callbacks to finish. A stopped bot is not restarted and ignores further
// triggers.
func (bot *WOMBot) Stop() {
	bot.mu.Lock()
	s := bot.sched
	bot.sched = nil
	bot.cancel()
	bot.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	if bot.hook != nil {
		if err := bot.hook.Close(); err != nil {
			logrus.WithError(err).Warnln("Media key hook close")
		}
	}
	bot.wg.Wait()
}

// dispatch registers one background request unless the bot was stopped.
// Checking ctx under mu orders every wg.Add before Stop's wg.Wait.
func (bot *WOMBot) dispatch() bool {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.ctx.Err() != nil {
		return false
	}
	bot.wg.Add(1)
	return true
}

// Tick starts a fetch when Interval has passed since the last attempt.
func (bot *WOMBot) Tick() {
	bot.mu.Lock()
	due := !bot.clock.Now().Before(bot.lastAttempt.Add(bot.opts.Interval))
	bot.mu.Unlock()
	if due {
		bot.Refresh()
	}
}

// LastAttempt is the time the last fetch was started.
func (bot *WOMBot) LastAttempt() time.Time {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.lastAttempt
}

// InFlight is the number of fetches not yet delivered.
func (bot *WOMBot) InFlight() int {
	return int(bot.inFlight.Load())
}

// Refresh fetches the group in the background and emits its summary (or the
// failure line). The returned channel closes once the result was delivered.
func (bot *WOMBot) Refresh() <-chan struct{} {
	return bot.fetch(func(g *womapi.Group) {
		for _, line := range womapi.SummaryLines(g, bot.opts.Verbose) {
			bot.sink.Emit(line)
		}
		bot.trackRanks(g)
	})
}

// PostSummary fetches the group and emits the three-line summary.
func (bot *WOMBot) PostSummary() <-chan struct{} {
	return bot.fetch(func(g *womapi.Group) {
		for _, line := range womapi.DetailedSummary(g) {
			bot.sink.Emit(line)
		}
	})
}

// PostRanking fetches the group and posts the ranking board.
func (bot *WOMBot) PostRanking() <-chan struct{} {
	return bot.fetch(func(g *womapi.Group) {
		for _, msg := range ranks.Board(g.GetName(), bot.clock.Now(), bot.table, g.Players()) {
			bot.sink.Emit(msg)
		}
	})
}

// fetch dispatches one request and hands a successful group to onGroup.
// Failures are emitted as a single line.
func (bot *WOMBot) fetch(onGroup func(*womapi.Group)) <-chan struct{} {
	done := make(chan struct{})

	if !bot.dispatch() {
		logrus.Debugln("Bot stopped, fetch skipped")
		close(done)
		return done
	}

	if bot.opts.SingleFlight {
		if !bot.inFlight.CompareAndSwap(0, 1) {
			logrus.Debugln("Fetch already in flight, trigger skipped")
			bot.wg.Done()
			close(done)
			return done
		}
	} else {
		bot.inFlight.Add(1)
	}

	bot.mu.Lock()
	bot.lastAttempt = bot.clock.Now()
	bot.mu.Unlock()

	groupID := bot.conf.GetString(KeyGroupID)
	apiKey := bot.conf.GetString(KeyAPIKey)

	bot.api.FetchAsync(bot.ctx, groupID, apiKey, func(g *womapi.Group, err error) {
		defer bot.wg.Done()
		defer close(done)
		defer bot.inFlight.Add(-1)

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"group":     groupID,
				"transient": womapi.IsTransient(err),
			}).WithError(err).Warnln("Group fetch failed")
			bot.sink.Emit(womapi.Describe(err))
			return
		}
		onGroup(g)
	})
	return done
}

func (bot *WOMBot) trackRanks(g *womapi.Group) {
	if bot.tracker == nil {
		return
	}
	changes, err := bot.tracker.Observe(g, bot.clock.Now())
	if err != nil {
		logrus.WithError(err).Errorln("Failed to update player ranks")
	}
	if !bot.opts.Announce {
		return
	}
	for _, c := range changes {
		logrus.WithFields(logrus.Fields{
			"player": c.Username,
			"from":   c.OldRank,
			"to":     c.NewRank,
			"ehb":    c.EHB,
		}).Infoln("Rank up")
		bot.sink.Emit(c.Message())
	}
}

// UpdateAll asks Wise Old Man to refresh every member of the group and emits
// the outcome. It needs wom.verification_code.
func (bot *WOMBot) UpdateAll() <-chan struct{} {
	done := make(chan struct{})
	if !bot.dispatch() {
		close(done)
		return done
	}

	groupID := bot.conf.GetString(KeyGroupID)
	code := bot.conf.GetString(KeyVerificationCode)

	go func() {
		defer bot.wg.Done()
		defer close(done)

		n, err := bot.api.UpdateAll(bot.ctx, groupID, code)
		bot.sink.Emit(updateAllLine(n, err))
	}()
	return done
}

// scheduledUpdateAll is the periodic job; without a verification code it
// stays quiet instead of posting the same configuration error every time.
func (bot *WOMBot) scheduledUpdateAll() {
	if bot.conf.GetString(KeyVerificationCode) == "" {
		logrus.Debugln("No group verification code, scheduled update-all skipped")
		return
	}
	<-bot.UpdateAll()
}

func updateAllLine(n int, err error) string {
	var ce *womapi.ConfigurationError
	switch {
	case err == nil && n > 0:
		return fmt.Sprintf("✅ Successfully refreshed group data. %d members updated.", n)
	case err == nil:
		return "ℹ️ Group data is already up to date."
	case errors.Is(err, womapi.ErrNothingToUpdate):
		return "ℹ️ The API reported 'Nothing to update'."
	case errors.As(err, &ce):
		return womapi.Describe(err)
	default:
		return "❌ Failed to refresh group: " + err.Error()
	}
}
