// Package cache publishes each run's top-K tables to Redis so readers can serve
// matches without recomputing.
//
// Key layout, all under the configured prefix:
//
//	{prefix}:latest                                  run id of the newest complete run
//	{prefix}:run:{run_id}:{direction}:{subject_id}   JSON array of ranked entries
//	{prefix}:run:{run_id}:labels                     hash of id -> display label
//
// A run's keys are written before the latest pointer moves, so a reader following
// the pointer always sees a complete run.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/ranking"
	"github.com/onnwee/foundermatch/internal/tracing"
)

// SinkName identifies the Redis sink in logs and metrics.
const SinkName = "redis"

// DefaultPrefix namespaces every key written by the cache.
const DefaultPrefix = "foundermatch"

// DefaultTTL keeps a run's keys for a day after publication.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned when no published run or no entry for the subject exists.
var ErrMiss = errors.New("cache miss")

// Entry is one ranked counterpart as published.
type Entry struct {
	CounterpartID    string  `json:"counterpart_id"`
	CounterpartLabel string  `json:"counterpart_label"`
	Score            float64 `json:"match_score"`
	Reason           string  `json:"reason"`
}

// Config configures a Cache.
type Config struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// Cache reads and writes published runs.
type Cache struct {
	client redis.UniversalClient
	config Config
}

// NewClient creates a Redis client from a redis:// or rediss:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// New creates a Cache. Zero config values fall back to defaults.
func New(client redis.UniversalClient, config Config) *Cache {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Cache{client: client, config: config}
}

func (c *Cache) latestKey() string {
	return c.config.Prefix + ":latest"
}

func (c *Cache) matchesKey(runID string, d match.Direction, subject string) string {
	return strings.Join([]string{c.config.Prefix, "run", runID, string(d), subject}, ":")
}

func (c *Cache) labelsKey(runID string) string {
	return strings.Join([]string{c.config.Prefix, "run", runID, "labels"}, ":")
}

// Name implements match.Sink.
func (c *Cache) Name() string { return SinkName }

// Publish implements match.Sink. Every subject of both directions is written in one
// MULTI/EXEC transaction, followed by the latest pointer.
func (c *Cache) Publish(ctx context.Context, run *match.Run) (err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "redis", "publish_run",
		attribute.String("match.run_id", run.ID))
	defer func() { endSpan(err) }()

	keys := 0
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range []match.Direction{match.FounderToProvider, match.ProviderToFounder} {
			table := run.Table(d)
			if table == nil {
				continue
			}
			for _, subject := range table.Subjects() {
				payload, err := json.Marshal(toEntries(run, table.For(subject)))
				if err != nil {
					return fmt.Errorf("encode matches for %s: %w", subject, err)
				}
				pipe.Set(ctx, c.matchesKey(run.ID, d, subject), payload, c.config.TTL)
				keys++
			}
		}

		labels := make(map[string]any)
		for _, ps := range [][]string{run.Matrix.FounderIDs, run.Matrix.ProviderIDs, run.Skipped} {
			for _, id := range ps {
				labels[id] = run.Directory.Resolve(id)
			}
		}
		if len(labels) > 0 {
			pipe.HSet(ctx, c.labelsKey(run.ID), labels)
			pipe.Expire(ctx, c.labelsKey(run.ID), c.config.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	if err = c.client.Set(ctx, c.latestKey(), run.ID, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("set latest run: %w", err)
	}

	c.config.Logger.Debug("cached match run",
		"run_id", run.ID,
		"keys", keys)
	return nil
}

func toEntries(run *match.Run, matches []ranking.Match) []Entry {
	out := make([]Entry, len(matches))
	for i, m := range matches {
		out[i] = Entry{
			CounterpartID:    m.CounterpartID,
			CounterpartLabel: run.Directory.Resolve(m.CounterpartID),
			Score:            m.Score,
			Reason:           m.Reason(),
		}
	}
	return out
}

// LatestRunID returns the id of the newest published run.
func (c *Cache) LatestRunID(ctx context.Context) (string, error) {
	id, err := c.client.Get(ctx, c.latestKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("get latest run: %w", err)
	}
	return id, nil
}

// Matches returns the published entries for subject in the latest run along with
// that run's id.
func (c *Cache) Matches(ctx context.Context, d match.Direction, subject string) (entries []Entry, runID string, err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "redis", "get_matches")
	defer func() { endSpan(err) }()

	runID, err = c.LatestRunID(ctx)
	if err != nil {
		return nil, "", err
	}

	payload, err := c.client.Get(ctx, c.matchesKey(runID, d, subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, runID, ErrMiss
	}
	if err != nil {
		return nil, runID, fmt.Errorf("get matches: %w", err)
	}

	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, runID, fmt.Errorf("decode matches: %w", err)
	}
	return entries, runID, nil
}

// Label returns the display label of id in the latest run, or id itself when the
// run has no label for it.
func (c *Cache) Label(ctx context.Context, id string) (string, error) {
	runID, err := c.LatestRunID(ctx)
	if err != nil {
		return "", err
	}

	label, err := c.client.HGet(ctx, c.labelsKey(runID), id).Result()
	if errors.Is(err, redis.Nil) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("get label: %w", err)
	}
	return label, nil
}
