package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

const (
	WebSiteURL    = "https://vaultsync.tv"
	LoginURL      = WebSiteURL + "/login"
	CollectionURL = WebSiteURL + "/collection_id/"
)

type Config struct {
	Port        int
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string

	// Media server admin API.
	LibraryURL   string
	LibraryToken string

	// vaultsync.tv API.
	UpstreamURL    string
	UpstreamSecret string

	// Minutes between scheduled sync runs. Operators can override via settings.
	SyncIntervalMinutes int

	// Fixed waits compensating for eventual consistency in the media server.
	SortNameSettle time.Duration
	PosterSettle   time.Duration
}

func Load() *Config {
	return &Config{
		Port:                envInt("PORT", 8080),
		DatabaseURL:         env("DATABASE_URL", "postgres://vaultsync:vaultsync@db:5432/vaultsync?sslmode=disable"),
		RedisAddr:           env("REDIS_ADDR", "redis:6379"),
		JWTSecret:           env("JWT_SECRET", "change-me-in-production"),
		LibraryURL:          env("LIBRARY_URL", "http://mediaserver:8096"),
		LibraryToken:        env("LIBRARY_TOKEN", ""),
		UpstreamURL:         env("UPSTREAM_URL", "https://api.vaultsync.tv/api"),
		UpstreamSecret:      env("UPSTREAM_SECRET", "matarbillnizzamy"),
		SyncIntervalMinutes: envInt("SYNC_INTERVAL_MINUTES", 120),
		SortNameSettle:      envDuration("SORT_NAME_SETTLE", 2*time.Second),
		PosterSettle:        envDuration("POSTER_SETTLE", 2*time.Second),
	}
}

// MergeFromDB overlays operator-tuned settings stored in Postgres. A missing
// table or row is not an error; env values and defaults stand.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "library_url":
			c.LibraryURL = value
		case "library_token":
			c.LibraryToken = value
		case "sync_interval_minutes":
			if v := cast.ToInt(value); v > 0 {
				c.SyncIntervalMinutes = v
			}
		case "sort_name_settle_ms":
			if v := cast.ToInt(value); v >= 0 {
				c.SortNameSettle = time.Duration(v) * time.Millisecond
			}
		case "poster_settle_ms":
			if v := cast.ToInt(value); v >= 0 {
				c.PosterSettle = time.Duration(v) * time.Millisecond
			}
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
