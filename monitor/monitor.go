// Package monitor runs the poll cycle that reconciles observed platform state
// against persisted snapshots and emits at-most-once notification intents.
//
// The persisted snapshot is the sole source of truth for "currently live":
// a creator with a snapshot is live, one without is offline or never observed.
// State writes always happen before dispatch, so a crash between the two drops
// a notification rather than duplicating it.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/streamwatch/platform"
	"github.com/onnwee/streamwatch/store"
	"github.com/onnwee/streamwatch/telemetry"
)

// Store is the persistence surface the monitor needs. *store.Store satisfies it;
// tests substitute an in-memory fake.
type Store interface {
	ListStreamers(ctx context.Context) ([]store.Streamer, error)
	GetSnapshot(ctx context.Context, platform, username string) (*store.Snapshot, error)
	SetSnapshot(ctx context.Context, snap *store.Snapshot) error
	ClearSnapshot(ctx context.Context, platform, username string) error
	UploadNotified(ctx context.Context, platform, username, url string) (bool, error)
	MarkUploadNotified(ctx context.Context, platform, username, url, title string, publishedAt time.Time) error
}

// Kind tags a notification intent.
type Kind string

const (
	KindWentLive    Kind = "went_live"
	KindWentOffline Kind = "went_offline"
	KindNewUpload   Kind = "new_upload"
)

// Intent is a detected transition handed to the Dispatcher. Stream is set for
// live transitions (for KindWentOffline it is the last snapshot before the
// creator went offline); Upload is set for KindNewUpload.
type Intent struct {
	Kind     Kind
	Platform string
	Username string
	Stream   *store.Snapshot
	Upload   *platform.Upload
}

// Dispatcher delivers an intent to its destinations. Delivery failures are the
// dispatcher's to report; by the time Dispatch is called the transition is
// already committed and will not be re-emitted.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent)
}

// Monitor owns the reconciliation cycle.
type Monitor struct {
	store      Store
	registry   *platform.Registry
	dispatcher Dispatcher

	pollTimeout    time.Duration
	uploadLookback time.Duration

	inFlight atomic.Bool
	now      func() time.Time
}

func New(st Store, reg *platform.Registry, d Dispatcher, pollTimeout, uploadLookback time.Duration) *Monitor {
	return &Monitor{
		store:          st,
		registry:       reg,
		dispatcher:     d,
		pollTimeout:    pollTimeout,
		uploadLookback: uploadLookback,
		now:            time.Now,
	}
}

// Start launches the cycle loop. The first cycle runs immediately, then every
// interval until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	go func() {
		slog.Info("monitor started", slog.Duration("interval", interval))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				slog.Info("monitor stopped")
				return
			case <-ticker.C:
				m.runOnce(ctx)
			}
		}
	}()
}

func (m *Monitor) runOnce(ctx context.Context) {
	telemetry.TimeFunc(telemetry.CycleDuration, func() {
		if err := m.RunCycle(ctx); err != nil {
			slog.Error("monitor cycle failed", slog.Any("err", err))
		}
	})
}

// RunCycle performs one reconciliation pass: poll live state for every tracked
// pair, diff against snapshots, then poll uploads. If a previous cycle is still
// in flight the call is skipped, never queued. A store error aborts the cycle;
// poll errors only skip the affected platform or pair.
func (m *Monitor) RunCycle(ctx context.Context) (err error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		slog.Warn("monitor cycle still in flight, skipping")
		return nil
	}
	defer m.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			inc(telemetry.CyclesFailed)
			err = fmt.Errorf("monitor cycle panic: %v", r)
		}
	}()

	inc(telemetry.Cycles)

	streamers, err := m.store.ListStreamers(ctx)
	if err != nil {
		inc(telemetry.CyclesFailed)
		return fmt.Errorf("list streamers: %w", err)
	}
	telemetry.SetTracked(len(streamers))

	byPlatform := make(map[string][]string)
	for _, s := range streamers {
		byPlatform[s.Platform] = append(byPlatform[s.Platform], s.Username)
	}
	names := make([]string, 0, len(byPlatform))
	for name := range byPlatform {
		names = append(names, name)
	}
	sort.Strings(names)

	// Phase 1: live transitions for every platform, before any upload work.
	live := 0
	for _, name := range names {
		n, err := m.reconcileLive(ctx, name, byPlatform[name])
		if err != nil {
			inc(telemetry.CyclesFailed)
			return err
		}
		live += n
	}
	telemetry.SetLive(live)

	// Phase 2: uploads.
	for _, name := range names {
		if err := m.reconcileUploads(ctx, name, byPlatform[name]); err != nil {
			inc(telemetry.CyclesFailed)
			return err
		}
	}
	return nil
}

// reconcileLive polls one platform and applies live/offline transitions.
// Returns the number of pairs live after reconciliation. The returned error is
// a store failure; poll failures are absorbed here.
func (m *Monitor) reconcileLive(ctx context.Context, name string, usernames []string) (int, error) {
	poller, err := m.registry.Get(name)
	if err != nil {
		slog.Error("unknown platform in store", slog.String("platform", name))
		return 0, nil
	}
	pctx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	results, err := poller.PollLive(pctx, usernames)
	cancel()
	if err != nil {
		// Batch failure: every pair on this platform keeps its snapshot, and
		// the retained snapshots still count as live.
		telemetry.IncPollError(name)
		slog.Warn("live poll failed", slog.String("platform", name), slog.Any("err", err))
		return m.countRetained(ctx, name, usernames)
	}

	live := 0
	for _, res := range results {
		if res.Err != nil {
			// Unknown state, not offline. Leave the snapshot alone.
			telemetry.IncPollError(name)
			slog.Warn("live poll failed for streamer",
				slog.String("platform", name), slog.String("username", res.Username), slog.Any("err", res.Err))
			n, err := m.countRetained(ctx, name, []string{res.Username})
			if err != nil {
				return live, err
			}
			live += n
			continue
		}
		n, err := m.applyLiveResult(ctx, name, res)
		if err != nil {
			return live, err
		}
		live += n
	}
	return live, nil
}

// countRetained reports how many of the pairs still hold a snapshot. Used when
// a poll yields no data so the live gauge reflects the retained state instead
// of dropping to zero for the duration of an upstream outage.
func (m *Monitor) countRetained(ctx context.Context, name string, usernames []string) (int, error) {
	live := 0
	for _, username := range usernames {
		snap, err := m.store.GetSnapshot(ctx, name, username)
		if err != nil {
			return live, fmt.Errorf("get snapshot %s/%s: %w", name, username, err)
		}
		if snap != nil {
			live++
		}
	}
	return live, nil
}

func (m *Monitor) applyLiveResult(ctx context.Context, name string, res platform.LiveResult) (int, error) {
	prev, err := m.store.GetSnapshot(ctx, name, res.Username)
	if err != nil {
		return 0, fmt.Errorf("get snapshot %s/%s: %w", name, res.Username, err)
	}

	switch {
	case res.Stream != nil && prev == nil:
		// Offline -> live.
		snap := snapshotOf(res.Stream)
		snap.NotifiedAt = m.now().UTC()
		if err := m.store.SetSnapshot(ctx, snap); err != nil {
			return 0, fmt.Errorf("set snapshot %s/%s: %w", name, res.Username, err)
		}
		inc(telemetry.WentLive)
		slog.Info("streamer went live",
			slog.String("platform", name), slog.String("username", res.Username), slog.String("title", snap.Title))
		m.dispatcher.Dispatch(ctx, Intent{Kind: KindWentLive, Platform: name, Username: res.Username, Stream: snap})
		return 1, nil

	case res.Stream != nil && prev != nil:
		// Still live. The snapshot is left as written at the go-live moment;
		// a mid-stream title or category change is acceptable staleness and
		// never a notification.
		return 1, nil

	case res.Stream == nil && prev != nil:
		// Live -> offline.
		if err := m.store.ClearSnapshot(ctx, name, res.Username); err != nil {
			return 0, fmt.Errorf("clear snapshot %s/%s: %w", name, res.Username, err)
		}
		inc(telemetry.WentOffline)
		slog.Info("streamer went offline",
			slog.String("platform", name), slog.String("username", res.Username))
		m.dispatcher.Dispatch(ctx, Intent{Kind: KindWentOffline, Platform: name, Username: res.Username, Stream: prev})
		return 0, nil

	default:
		// Still offline.
		return 0, nil
	}
}

// reconcileUploads polls recent uploads for one platform and notifies each
// upload at most once via the ledger. The returned error is a store failure.
func (m *Monitor) reconcileUploads(ctx context.Context, name string, usernames []string) error {
	poller, err := m.registry.Get(name)
	if err != nil || !poller.SupportsUploads() {
		return nil
	}
	since := m.now().UTC().Add(-m.uploadLookback)
	pctx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	results, err := poller.PollUploads(pctx, usernames, since)
	cancel()
	if err != nil {
		telemetry.IncPollError(name)
		slog.Warn("upload poll failed", slog.String("platform", name), slog.Any("err", err))
		return nil
	}

	for _, res := range results {
		if res.Err != nil {
			telemetry.IncPollError(name)
			slog.Warn("upload poll failed for streamer",
				slog.String("platform", name), slog.String("username", res.Username), slog.Any("err", res.Err))
			continue
		}
		for i := range res.Uploads {
			up := res.Uploads[i]
			seen, err := m.store.UploadNotified(ctx, name, res.Username, up.URL)
			if err != nil {
				return fmt.Errorf("upload ledger lookup %s/%s: %w", name, res.Username, err)
			}
			if seen {
				continue
			}
			if err := m.store.MarkUploadNotified(ctx, name, res.Username, up.URL, up.Title, up.PublishedAt); err != nil {
				return fmt.Errorf("upload ledger mark %s/%s: %w", name, res.Username, err)
			}
			inc(telemetry.NewUploads)
			slog.Info("new upload",
				slog.String("platform", name), slog.String("username", res.Username), slog.String("url", up.URL))
			m.dispatcher.Dispatch(ctx, Intent{Kind: KindNewUpload, Platform: name, Username: res.Username, Upload: &up})
		}
	}
	return nil
}

func snapshotOf(ls *platform.LiveStream) *store.Snapshot {
	return &store.Snapshot{
		Platform:    ls.Platform,
		Username:    ls.Username,
		DisplayName: ls.DisplayName,
		Title:       ls.Title,
		Category:    ls.Category,
		Viewers:     ls.Viewers,
		StartedAt:   ls.StartedAt,
		Thumbnail:   ls.Thumbnail,
		URL:         ls.URL,
	}
}

// inc guards against metrics not being registered, which is the case in tests.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
