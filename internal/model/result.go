package model

import "time"

// PublishResult describes one rendered report
type PublishResult struct {
	Plugin      string            `json:"plugin"`
	URI         string            `json:"uri"`
	Server      string            `json:"server,omitempty"` // Empty for dry runs
	DryRun      bool              `json:"dry_run"`
	PublishedAt time.Time         `json:"published_at"`
	Metadata    map[string]string `json:"metadata,omitempty"` // Setting values as published
}

// FetchResult describes a nanopub retrieved from a server
type FetchResult struct {
	URI      string `json:"uri"`
	Quads    int    `json:"quads"`
	Cached   bool   `json:"cached"`
	Verified bool   `json:"verified"`
}
