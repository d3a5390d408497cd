package domain

import "context"

// Setting is a small key-value configuration entry.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsStore reads and writes key-value settings.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]Setting, error)
}
