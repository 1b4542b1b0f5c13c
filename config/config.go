// Package config provides access to dynamic configuration values stored in the
// system_config table. Environment variables override stored values; reads are
// cached with a short TTL.
package config

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Service struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     string
	expiresAt time.Time
}

const defaultTTL = time.Minute

func New(db *sql.DB) *Service {
	return &Service{db: db, cache: make(map[string]cachedEntry)}
}

// GetString returns a string config value. The env var name is derived from
// the key by uppercasing and replacing dots with underscores.
func (s *Service) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	if v, ok := s.envOverride(key); ok {
		return v, nil
	}
	if v, ok := s.getFromCache(key); ok {
		return v, nil
	}

	v, err := s.query(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return defaultValue, nil
		}

		return "", err
	}

	s.putInCache(key, v)

	return v, nil
}

// GetInt returns an integer config value.
func (s *Service) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if v == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

// GetBool returns a boolean config value.
func (s *Service) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return false, err
	}
	if v == "" {
		return defaultValue, nil
	}

	return strings.EqualFold(v, "true") || v == "1", nil
}

func (s *Service) query(ctx context.Context, key string) (string, error) {
	const q = `SELECT value FROM system_config WHERE key = $1 LIMIT 1`

	var v string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)

	return v, err
}

func (s *Service) envOverride(key string) (string, bool) {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	v, ok := os.LookupEnv(name)

	return v, ok
}

func (s *Service) getFromCache(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}

	return entry.value, true
}

func (s *Service) putInCache(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = cachedEntry{value: value, expiresAt: time.Now().Add(defaultTTL)}
}
