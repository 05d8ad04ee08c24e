// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lanternguild/gcbridge/lib/clock"
	"github.com/lanternguild/gcbridge/lib/steamid"
	"github.com/lanternguild/gcbridge/lib/steamsession"
)

// Session is what the poller needs from the Steam logon.
// *steamsession.Manager implements it.
type Session interface {
	LoggedOn() bool
	RequestRichPresence(appID uint32, ids []steamid.ID) error
}

// Config configures a Poller. Zero values take the defaults noted.
type Config struct {
	Store   Store
	Session Session

	// AppID routes presence requests; Steam answers with that app's
	// presence keys.
	AppID uint32

	Clock  clock.Clock
	Logger *slog.Logger

	// RefreshInterval is the watchlist re-read period (30s).
	RefreshInterval time.Duration
	// PollInterval is the presence request period (15s).
	PollInterval time.Duration
	// ChunkSize bounds the ids in one request (25).
	ChunkSize int
	// ChunkInterval is the minimum spacing of requests (1s).
	ChunkInterval time.Duration
}

// Status is a snapshot of the poller.
type Status struct {
	Watched        int        `json:"watched"`
	Invalid        int        `json:"invalid"`
	Updates        int64      `json:"updates"`
	DroppedUpdates int64      `json:"droppedUpdates,omitempty"`
	LastRefreshAt  *time.Time `json:"lastRefreshAt,omitempty"`
	LastPollAt     *time.Time `json:"lastPollAt,omitempty"`
	LastUpdateAt   *time.Time `json:"lastUpdateAt,omitempty"`
	LastStoreError string     `json:"lastStoreError,omitempty"`
}

// updateBuffer bounds presence answers queued between the session's
// event loop and Run.
const updateBuffer = 256

// Poller keeps the watchlist and requests presence for it. It
// implements steamsession.Listener: subscribe it to the manager so
// presence answers reach Run.
type Poller struct {
	store           Store
	session         Session
	appID           uint32
	clock           clock.Clock
	logger          *slog.Logger
	refreshInterval time.Duration
	pollInterval    time.Duration
	chunkSize       int
	limiter         *rate.Limiter

	updates chan steamsession.RichPresenceEvent
	pollNow chan struct{}

	mu             sync.Mutex
	watched        map[steamid.ID]struct{}
	invalid        map[string]struct{}
	updateCount    int64
	droppedCount   int64
	lastRefreshAt  time.Time
	lastPollAt     time.Time
	lastUpdateAt   time.Time
	lastStoreError string
}

var _ steamsession.Listener = (*Poller)(nil)

// NewPoller validates cfg and returns a Poller with an empty
// watchlist.
func NewPoller(cfg Config) (*Poller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("presence: Store is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("presence: Session is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 25
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}
	return &Poller{
		store:           cfg.Store,
		session:         cfg.Session,
		appID:           cfg.AppID,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		refreshInterval: cfg.RefreshInterval,
		pollInterval:    cfg.PollInterval,
		chunkSize:       cfg.ChunkSize,
		limiter:         rate.NewLimiter(rate.Every(cfg.ChunkInterval), 1),
		updates:         make(chan steamsession.RichPresenceEvent, updateBuffer),
		pollNow:         make(chan struct{}, 1),
		watched:         make(map[steamid.ID]struct{}),
		invalid:         make(map[string]struct{}),
	}, nil
}

// HandleSessionEvent queues presence answers for Run and asks for a
// poll after each logon. It never blocks the session's event loop: an
// answer arriving with the queue full is dropped.
func (p *Poller) HandleSessionEvent(ev steamsession.Event) {
	switch ev := ev.(type) {
	case steamsession.RichPresenceEvent:
		select {
		case p.updates <- ev:
		default:
			p.mu.Lock()
			p.droppedCount++
			p.mu.Unlock()
			p.logger.Warn("presence update dropped, queue full", "steam_id", ev.SteamID)
		}
	case steamsession.LoggedOnEvent:
		select {
		case p.pollNow <- struct{}{}:
		default:
		}
	}
}

// Run refreshes and polls at once, then on their intervals, and
// stores queued presence answers until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("presence poller started",
		"refresh_interval", p.refreshInterval,
		"poll_interval", p.pollInterval,
		"chunk_size", p.chunkSize,
	)
	refresh := p.clock.NewTicker(p.refreshInterval)
	defer refresh.Stop()
	poll := p.clock.NewTicker(p.pollInterval)
	defer poll.Stop()

	p.refreshAndLog(ctx)
	p.pollAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("presence poller stopped")
			return nil
		case <-refresh.C:
			p.refreshAndLog(ctx)
		case <-poll.C:
			p.pollAndLog(ctx)
		case <-p.pollNow:
			p.pollAndLog(ctx)
		case ev := <-p.updates:
			if err := p.HandlePresence(ctx, ev.SteamID, ev.AppID, ev.Values); err != nil && ctx.Err() == nil {
				p.logger.Error("storing presence failed", "steam_id", ev.SteamID, "error", err)
			}
		}
	}
}

func (p *Poller) refreshAndLog(ctx context.Context) {
	if _, _, err := p.RefreshWatchlist(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("watchlist refresh failed", "error", err)
	}
}

func (p *Poller) pollAndLog(ctx context.Context) {
	if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("presence poll failed", "error", err)
	}
}

// RefreshWatchlist re-reads the source union. Identities that do not
// parse as individual accounts are skipped and logged once. New
// accounts are requested at once when logged on; accounts no longer
// in the union are dropped.
func (p *Poller) RefreshWatchlist(ctx context.Context) (added, removed int, err error) {
	raw, err := p.store.WatchedIdentities(ctx)
	if err != nil {
		return 0, 0, err
	}

	current := make(map[steamid.ID]struct{}, len(raw))
	invalid := make(map[string]struct{})
	p.mu.Lock()
	for _, value := range raw {
		id, parseErr := steamid.Parse(value)
		if parseErr != nil {
			if _, seen := p.invalid[value]; !seen {
				p.logger.Warn("ignoring invalid watchlist identity", "value", value, "error", parseErr)
			}
			invalid[value] = struct{}{}
			continue
		}
		current[id] = struct{}{}
	}

	var fresh []steamid.ID
	for id := range current {
		if _, known := p.watched[id]; !known {
			fresh = append(fresh, id)
		}
	}
	for id := range p.watched {
		if _, still := current[id]; !still {
			removed++
		}
	}
	p.watched = current
	p.invalid = invalid
	p.lastRefreshAt = p.clock.Now()
	p.mu.Unlock()

	added = len(fresh)
	if added > 0 || removed > 0 {
		p.logger.Info("watchlist changed", "added", added, "removed", removed, "watched", len(current))
	}
	if added > 0 && p.session.LoggedOn() {
		slices.Sort(fresh)
		if err := p.request(ctx, fresh); err != nil {
			return added, removed, err
		}
	}
	return added, removed, nil
}

// PollOnce requests presence for every watched account, chunked and
// paced. It does nothing while logged off. A failed request is logged
// and the remaining chunks are still sent.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.session.LoggedOn() {
		p.logger.Debug("presence poll skipped, not logged on")
		return nil
	}
	p.mu.Lock()
	ids := make([]steamid.ID, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	slices.Sort(ids)

	if err := p.request(ctx, ids); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastPollAt = p.clock.Now()
	p.mu.Unlock()
	return nil
}

// request sends ids in chunks. Only cancellation is returned.
func (p *Poller) request(ctx context.Context, ids []steamid.ID) error {
	for chunk := range slices.Chunk(ids, p.chunkSize) {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := p.session.RequestRichPresence(p.appID, chunk); err != nil {
			p.logger.Warn("presence request failed", "ids", len(chunk), "first", chunk[0], "error", err)
		}
	}
	return nil
}

// wait takes one token from the limiter, sleeping on the injected
// clock.
func (p *Poller) wait(ctx context.Context) error {
	now := p.clock.Now()
	reservation := p.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-p.clock.After(delay):
		return nil
	case <-ctx.Done():
		reservation.CancelAt(p.clock.Now())
		return ctx.Err()
	}
}

// HandlePresence normalizes and stores one presence answer. Answers
// for accounts not on the watchlist are ignored.
func (p *Poller) HandlePresence(ctx context.Context, id steamid.ID, appID uint32, values map[string]any) error {
	p.mu.Lock()
	_, watched := p.watched[id]
	p.mu.Unlock()
	if !watched {
		p.logger.Debug("presence for unwatched account ignored", "steam_id", id)
		return nil
	}
	if appID == 0 {
		appID = p.appID
	}

	now := p.clock.Now()
	err := p.store.Upsert(ctx, Normalize(id, appID, values, now))
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastStoreError = err.Error()
		return err
	}
	p.updateCount++
	p.lastUpdateAt = now
	p.lastStoreError = ""
	return nil
}

// Watched returns the watched accounts, sorted.
func (p *Poller) Watched() []steamid.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]steamid.ID, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Status returns a snapshot.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Watched:        len(p.watched),
		Invalid:        len(p.invalid),
		Updates:        p.updateCount,
		DroppedUpdates: p.droppedCount,
		LastRefreshAt:  timePointer(p.lastRefreshAt),
		LastPollAt:     timePointer(p.lastPollAt),
		LastUpdateAt:   timePointer(p.lastUpdateAt),
		LastStoreError: p.lastStoreError,
	}
}

func timePointer(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
