// Package store persists the tracked-streamer mapping, live snapshots, the
// upload dedup ledger, and per-guild default channels in Postgres. The monitor
// is the only writer of snapshots and ledger entries; the Discord command
// handlers read and write streamer rows. Mutations touching multiple rows for
// one (platform, username) pair run inside a transaction so a pair is never
// left half-written.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Streamer is a tracked (platform, username) pair with its guild -> channel map.
type Streamer struct {
	Platform string
	Username string
	Guilds   map[string]string
}

// Snapshot is the persisted live state of a streamer. Its existence is the sole
// source of truth for "currently live": absence means offline or never observed.
type Snapshot struct {
	Platform    string
	Username    string
	DisplayName string
	Title       string
	Category    string
	Viewers     int
	StartedAt   time.Time
	Thumbnail   string
	URL         string
	NotifiedAt  time.Time
}

// Store wraps the Postgres handle with the accessors the monitor and the
// command handlers need.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// UpsertStreamer creates the streamer if absent and sets/overwrites the guild's
// channel mapping. Idempotent.
func (s *Store) UpsertStreamer(ctx context.Context, platform, username, guildID, channelID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert streamer begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO streamers (platform, username) VALUES ($1,$2)
		 ON CONFLICT (platform, username) DO UPDATE SET platform=EXCLUDED.platform
		 RETURNING id`, platform, username).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert streamer row: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO streamer_guilds (streamer_id, guild_id, channel_id) VALUES ($1,$2,$3)
		 ON CONFLICT (streamer_id, guild_id) DO UPDATE SET channel_id=EXCLUDED.channel_id`,
		id, guildID, channelID)
	if err != nil {
		return fmt.Errorf("upsert streamer guild: %w", err)
	}
	return tx.Commit()
}

// RemoveStreamer removes the guild's mapping. When the last mapping goes, the
// streamer and its live snapshot are deleted in the same transaction. No-op if
// the pair is not tracked for that guild.
func (s *Store) RemoveStreamer(ctx context.Context, platform, username, guildID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove streamer begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM streamers WHERE platform=$1 AND username=$2`, platform, username).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove streamer lookup: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM streamer_guilds WHERE streamer_id=$1 AND guild_id=$2`, id, guildID); err != nil {
		return fmt.Errorf("remove streamer guild: %w", err)
	}
	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM streamer_guilds WHERE streamer_id=$1`, id).Scan(&remaining); err != nil {
		return fmt.Errorf("remove streamer count: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM streamers WHERE id=$1`, id); err != nil {
			return fmt.Errorf("remove streamer row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM live_streams WHERE platform=$1 AND username=$2`, platform, username); err != nil {
			return fmt.Errorf("remove streamer snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// GetStreamer returns the streamer with its guild map, or nil if not tracked.
func (s *Store) GetStreamer(ctx context.Context, platform, username string) (*Streamer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sg.guild_id, sg.channel_id FROM streamers s
		 JOIN streamer_guilds sg ON sg.streamer_id = s.id
		 WHERE s.platform=$1 AND s.username=$2`, platform, username)
	if err != nil {
		return nil, fmt.Errorf("get streamer: %w", err)
	}
	defer rows.Close()
	st := &Streamer{Platform: platform, Username: username, Guilds: map[string]string{}}
	for rows.Next() {
		var gid, cid string
		if err := rows.Scan(&gid, &cid); err != nil {
			return nil, fmt.Errorf("get streamer scan: %w", err)
		}
		st.Guilds[gid] = cid
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(st.Guilds) == 0 {
		return nil, nil
	}
	return st, nil
}

// ListStreamers returns every tracked streamer with its guild map, ordered by
// (platform, username) so iteration is deterministic within a process.
func (s *Store) ListStreamers(ctx context.Context) ([]Streamer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.platform, s.username, sg.guild_id, sg.channel_id
		 FROM streamers s
		 JOIN streamer_guilds sg ON sg.streamer_id = s.id
		 ORDER BY s.platform, s.username`)
	if err != nil {
		return nil, fmt.Errorf("list streamers: %w", err)
	}
	defer rows.Close()
	return collectStreamers(rows)
}

// ListStreamersForGuild returns the streamers tracked by one guild, in stable
// (platform, username) order.
func (s *Store) ListStreamersForGuild(ctx context.Context, guildID string) ([]Streamer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.platform, s.username, sg.guild_id, sg.channel_id
		 FROM streamers s
		 JOIN streamer_guilds sg ON sg.streamer_id = s.id
		 WHERE sg.guild_id = $1
		 ORDER BY s.platform, s.username`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list streamers for guild: %w", err)
	}
	defer rows.Close()
	return collectStreamers(rows)
}

func collectStreamers(rows *sql.Rows) ([]Streamer, error) {
	var out []Streamer
	idx := map[string]int{}
	for rows.Next() {
		var platform, username, gid, cid string
		if err := rows.Scan(&platform, &username, &gid, &cid); err != nil {
			return nil, fmt.Errorf("streamer scan: %w", err)
		}
		key := platform + ":" + username
		i, ok := idx[key]
		if !ok {
			out = append(out, Streamer{Platform: platform, Username: username, Guilds: map[string]string{}})
			i = len(out) - 1
			idx[key] = i
		}
		out[i].Guilds[gid] = cid
	}
	return out, rows.Err()
}

// GetSnapshot returns the live snapshot for a pair, or nil when offline/unknown.
func (s *Store) GetSnapshot(ctx context.Context, platform, username string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT display_name, title, category, viewers, started_at, thumbnail, url, notified_at
		 FROM live_streams WHERE platform=$1 AND username=$2`, platform, username)
	snap := &Snapshot{Platform: platform, Username: username}
	var startedAt, notifiedAt sql.NullTime
	err := row.Scan(&snap.DisplayName, &snap.Title, &snap.Category, &snap.Viewers,
		&startedAt, &snap.Thumbnail, &snap.URL, &notifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if startedAt.Valid {
		snap.StartedAt = startedAt.Time
	}
	if notifiedAt.Valid {
		snap.NotifiedAt = notifiedAt.Time
	}
	return snap, nil
}

// SetSnapshot writes or replaces the live snapshot for a pair.
func (s *Store) SetSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO live_streams (platform, username, display_name, title, category, viewers, started_at, thumbnail, url, notified_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (platform, username) DO UPDATE SET
		   display_name=EXCLUDED.display_name, title=EXCLUDED.title, category=EXCLUDED.category,
		   viewers=EXCLUDED.viewers, started_at=EXCLUDED.started_at, thumbnail=EXCLUDED.thumbnail,
		   url=EXCLUDED.url, notified_at=EXCLUDED.notified_at`,
		snap.Platform, snap.Username, snap.DisplayName, snap.Title, snap.Category,
		snap.Viewers, snap.StartedAt, snap.Thumbnail, snap.URL, snap.NotifiedAt)
	if err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// ClearSnapshot deletes the live snapshot for a pair. No-op if absent.
func (s *Store) ClearSnapshot(ctx context.Context, platform, username string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM live_streams WHERE platform=$1 AND username=$2`, platform, username); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// CountSnapshots returns the number of currently-live streamers (for /status).
func (s *Store) CountSnapshots(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM live_streams`).Scan(&n)
	return n, err
}

// CountStreamers returns the number of tracked pairs (for /status).
func (s *Store) CountStreamers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM streamers`).Scan(&n)
	return n, err
}

// UploadNotified reports whether the upload URL has already been notified for
// this pair.
func (s *Store) UploadNotified(ctx context.Context, platform, username, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notified_uploads WHERE platform=$1 AND username=$2 AND url=$3`,
		platform, username, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upload notified: %w", err)
	}
	return true, nil
}

// MarkUploadNotified records an upload in the dedup ledger. The ledger is
// append-only; re-marking an already-present URL is a no-op.
func (s *Store) MarkUploadNotified(ctx context.Context, platform, username, url, title string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notified_uploads (platform, username, url, title, published_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (platform, username, url) DO NOTHING`,
		platform, username, url, title, publishedAt)
	if err != nil {
		return fmt.Errorf("mark upload notified: %w", err)
	}
	return nil
}

// SetGuildChannel sets the default notification channel for a guild.
func (s *Store) SetGuildChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, channel_id, updated_at) VALUES ($1,$2,NOW())
		 ON CONFLICT (guild_id) DO UPDATE SET channel_id=EXCLUDED.channel_id, updated_at=NOW()`,
		guildID, channelID)
	if err != nil {
		return fmt.Errorf("set guild channel: %w", err)
	}
	return nil
}

// GetGuildChannel returns the guild's default notification channel, or "" if unset.
func (s *Store) GetGuildChannel(ctx context.Context, guildID string) (string, error) {
	var cid string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id FROM guild_settings WHERE guild_id=$1`, guildID).Scan(&cid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get guild channel: %w", err)
	}
	return cid, nil
}
