// Package enforce applies and removes the block set on the host.
package enforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/model"
)

// Enforcer applies a block set and clears it. Both calls are idempotent.
type Enforcer interface {
	Apply(ctx context.Context, bs model.BlockSet) error
	Clear(ctx context.Context) error
}

// FileEnforcer publishes the active block set as a JSON file that a host-side
// blocker (DNS filter, launcher policy) watches. No file means nothing is blocked.
type FileEnforcer struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
}

var _ Enforcer = (*FileEnforcer)(nil)

// NewFileEnforcer constructs an enforcer writing to path on fsys.
func NewFileEnforcer(fsys afero.Fs, path string, log *zap.Logger) *FileEnforcer {
	return &FileEnforcer{fs: fsys, path: path, log: log}
}

type blockFile struct {
	Applications []string `json:"applications"`
	WebDomains   []string `json:"web_domains"`
}

// Apply atomically replaces the block file with bs.
func (e *FileEnforcer) Apply(_ context.Context, bs model.BlockSet) error {
	data, err := json.MarshalIndent(blockFile{
		Applications: nonNil(bs.Applications),
		WebDomains:   nonNil(bs.WebDomains),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("enforce: mkdir: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := afero.WriteFile(e.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("enforce: write: %w", err)
	}
	if err := e.fs.Rename(tmp, e.path); err != nil {
		_ = e.fs.Remove(tmp)
		return fmt.Errorf("enforce: rename: %w", err)
	}
	e.log.Info("block set applied", zap.String("path", e.path), zap.Int("tokens", bs.Len()))
	return nil
}

// Clear removes the block file; a missing file is not an error.
func (e *FileEnforcer) Clear(_ context.Context) error {
	err := e.fs.Remove(e.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("enforce: remove: %w", err)
	}
	e.log.Info("block set cleared", zap.String("path", e.path))
	return nil
}

// Current reads the applied block set. ok is false when nothing is applied.
func (e *FileEnforcer) Current() (bs model.BlockSet, ok bool, err error) {
	data, err := afero.ReadFile(e.fs, e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.BlockSet{}, false, nil
	}
	if err != nil {
		return model.BlockSet{}, false, err
	}
	var f blockFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.BlockSet{}, false, fmt.Errorf("enforce: decode: %w", err)
	}
	return model.BlockSet{Applications: f.Applications, WebDomains: f.WebDomains}, true, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// Nop discards every call.
type Nop struct{}

func (Nop) Apply(context.Context, model.BlockSet) error { return nil }
func (Nop) Clear(context.Context) error                 { return nil }
