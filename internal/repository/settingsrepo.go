// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// SettingsRepository is the Config Store: a flat snapshot of stable string keys.
type SettingsRepository interface {
	// Load returns every stored key. An empty store yields an empty map.
	Load(ctx context.Context) (map[string]string, error)
	// Save atomically replaces the stored snapshot with values.
	Save(ctx context.Context, values map[string]string) error
}
