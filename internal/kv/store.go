package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kpopdemonz-relay/internal/config"
	"kpopdemonz-relay/internal/models"
)

// ErrNotFound is returned when a job or short link does not exist or has expired.
var ErrNotFound = errors.New("not found")

const (
	shortKeyPrefix = "short:"
	feedKey        = "public_feed"
)

// Store keeps transient job records, short-link mappings, and the public
// feed in Redis. Jobs and short links share one TTL window; the feed has
// its own, longer one.
type Store struct {
	client  *redis.Client
	jobTTL  time.Duration
	feedTTL time.Duration
	feedMax int
}

// New builds the KV store from config.
func New(cfg config.Config) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	jobTTL := cfg.JobTTL
	if jobTTL == 0 {
		jobTTL = 24 * time.Hour
	}
	feedTTL := cfg.FeedTTL
	if feedTTL == 0 {
		feedTTL = 7 * 24 * time.Hour
	}
	feedMax := cfg.FeedMaxEntries
	if feedMax == 0 {
		feedMax = 50
	}
	return &Store{
		client:  client,
		jobTTL:  jobTTL,
		feedTTL: feedTTL,
		feedMax: feedMax,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func shortKey(shortID string) string {
	return shortKeyPrefix + shortID
}

// PutJob writes the full job record, resetting its TTL. Writes are
// last-write-wins; concurrent webhook deliveries are not coordinated.
func (s *Store) PutJob(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, job.ID, data, s.jobTTL).Err(); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job record by prediction ID.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	data, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return job, nil
}

// PutShortLink maps a short token to a prediction ID with the job TTL.
func (s *Store) PutShortLink(ctx context.Context, shortID, jobID string) error {
	if err := s.client.Set(ctx, shortKey(shortID), jobID, s.jobTTL).Err(); err != nil {
		return fmt.Errorf("put short link %s: %w", shortID, err)
	}
	return nil
}

// ResolveShort returns the prediction ID behind a short token.
func (s *Store) ResolveShort(ctx context.Context, shortID string) (string, error) {
	jobID, err := s.client.Get(ctx, shortKey(shortID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve short %s: %w", shortID, err)
	}
	return jobID, nil
}

// AppendFeed prepends an entry to the public feed and trims it to the
// configured bound, atomically within one pipeline.
func (s *Store) AppendFeed(ctx context.Context, entry models.FeedEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal feed entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, feedKey, data)
	pipe.LTrim(ctx, feedKey, 0, int64(s.feedMax-1))
	pipe.Expire(ctx, feedKey, s.feedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append feed: %w", err)
	}
	return nil
}

// RecentFeed returns the feed most-recent-first. Entries that fail to
// decode are skipped.
func (s *Store) RecentFeed(ctx context.Context) ([]models.FeedEntry, error) {
	items, err := s.client.LRange(ctx, feedKey, 0, int64(s.feedMax-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	entries := make([]models.FeedEntry, 0, len(items))
	for _, item := range items {
		var entry models.FeedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteJob removes a job record and its short link, returning how many
// keys actually existed.
func (s *Store) DeleteJob(ctx context.Context, jobID, shortID string) (int64, error) {
	keys := []string{jobID}
	if shortID != "" {
		keys = append(keys, shortKey(shortID))
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return n, nil
}

// DeleteFeed drops the public feed entirely.
func (s *Store) DeleteFeed(ctx context.Context) (int64, error) {
	n, err := s.client.Del(ctx, feedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("delete feed: %w", err)
	}
	return n, nil
}
