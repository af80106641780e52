package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/google/uuid"
)

const (
	kindComputers  = "computers"
	kindCodes      = "codes"
	kindGroups     = "groups"
	kindStructures = "structures"
)

// LocalEngine keeps one profile under <storageRoot>/<profile>.
type LocalEngine struct {
	root    string
	profile string
	mu      sync.Mutex
}

var _ domain.StructureStore = (*LocalEngine)(nil)

// NewLocalEngine opens (creating if needed) the profile directory.
func NewLocalEngine(storageRoot, profile string) (*LocalEngine, error) {
	if storageRoot == "" {
		return nil, fmt.Errorf("%w: empty storage root", domain.ErrUsage)
	}
	if profile == "" {
		return nil, fmt.Errorf("%w: empty profile name", domain.ErrUsage)
	}
	e := &LocalEngine{root: filepath.Join(storageRoot, profile), profile: profile}
	if err := os.MkdirAll(e.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return e, nil
}

// Profile returns the profile name.
func (e *LocalEngine) Profile() string { return e.profile }

// Dir returns the profile directory.
func (e *LocalEngine) Dir() string { return e.root }

// WorkDir is where calculations of this profile would run.
func (e *LocalEngine) WorkDir() string { return filepath.Join(e.root, "workdir") }

// Wipe removes every stored document of the profile.
func (e *LocalEngine) Wipe() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.RemoveAll(e.root); err != nil {
		return fmt.Errorf("failed to wipe profile %s: %w", e.profile, err)
	}
	slog.Info("Wiped engine profile", "profile", e.profile, "path", e.root)
	return os.MkdirAll(e.root, 0o755)
}

// EnsureComputer returns the computer with c's label, storing c if absent.
func (e *LocalEngine) EnsureComputer(ctx context.Context, c Computer) (Upsert[Computer], error) {
	return ensure(ctx, e, kindComputers, c.Label, func() Computer {
		c.UUID = uuid.NewString()
		return c
	})
}

// EnsureCode returns the code with c's full label, storing c if absent.
// The computer it refers to must exist.
func (e *LocalEngine) EnsureCode(ctx context.Context, c Code) (Upsert[Code], error) {
	if _, err := e.Computer(ctx, c.Computer); err != nil {
		return Upsert[Code]{}, fmt.Errorf("code %s: %w", c.FullLabel(), err)
	}
	return ensure(ctx, e, kindCodes, c.FullLabel(), func() Code {
		c.UUID = uuid.NewString()
		return c
	})
}

// EnsurePseudoFamily returns the family labelled after cfg, creating it with
// the given cutoffs if absent.
func (e *LocalEngine) EnsurePseudoFamily(ctx context.Context, cfg SsspConfiguration, cutoffs map[string]Cutoff) (Upsert[PseudoFamily], error) {
	return ensure(ctx, e, kindGroups, cfg.Label(), func() PseudoFamily {
		return PseudoFamily{
			UUID:          uuid.NewString(),
			Label:         cfg.Label(),
			Configuration: cfg,
			Stringency:    "normal",
			Unit:          "Ry",
			Cutoffs:       cutoffs,
		}
	})
}

// Computer loads a computer by label.
func (e *LocalEngine) Computer(ctx context.Context, label string) (Computer, error) {
	var c Computer
	return c, e.get(ctx, kindComputers, label, &c)
}

// Code loads a code by its "label@computer" form.
func (e *LocalEngine) Code(ctx context.Context, fullLabel string) (Code, error) {
	var c Code
	return c, e.get(ctx, kindCodes, fullLabel, &c)
}

// Structure loads a stored structure by structure id.
func (e *LocalEngine) Structure(ctx context.Context, id string) (StoredStructure, error) {
	var s StoredStructure
	return s, e.get(ctx, kindStructures, id, &s)
}

// StoreStructure stores s keyed by its id and returns the node UUID. An
// existing node keeps its UUID; it is rewritten only when the content hash
// changed.
func (e *LocalEngine) StoreStructure(ctx context.Context, s *domain.Structure) (string, bool, error) {
	if s.ID == "" {
		return "", false, fmt.Errorf("%w: structure without id", domain.ErrUsage)
	}
	if s.ContentHash == "" {
		s.ContentHash = s.ComputeHash()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var existing StoredStructure
	err := e.load(ctx, kindStructures, s.ID, &existing)
	switch {
	case err == nil:
		if existing.Structure.ContentHash == s.ContentHash {
			return existing.UUID, false, nil
		}
		existing.Structure = *s
		existing.StoredAt = time.Now().UTC()
		if err := e.save(kindStructures, s.ID, existing); err != nil {
			return "", false, err
		}
		return existing.UUID, false, nil
	case errors.Is(err, domain.ErrNotFound):
		node := StoredStructure{UUID: uuid.NewString(), StoredAt: time.Now().UTC(), Structure: *s}
		if err := e.save(kindStructures, s.ID, node); err != nil {
			return "", false, err
		}
		return node.UUID, true, nil
	default:
		return "", false, err
	}
}

func ensure[T any](ctx context.Context, e *LocalEngine, kind, key string, create func() T) (Upsert[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var existing T
	err := e.load(ctx, kind, key, &existing)
	if err == nil {
		return Upsert[T]{Handle: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Upsert[T]{}, err
	}

	created := create()
	if err := e.save(kind, key, created); err != nil {
		return Upsert[T]{}, err
	}
	slog.Debug("Created engine node", "profile", e.profile, "kind", kind, "key", key)
	return Upsert[T]{Handle: created, Created: true}, nil
}

func (e *LocalEngine) get(ctx context.Context, kind, key string, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx, kind, key, v)
}

func (e *LocalEngine) path(kind, key string) string {
	return filepath.Join(e.root, kind, url.PathEscape(key)+".json")
}

// load reads one document. Only a missing document maps to ErrNotFound.
func (e *LocalEngine) load(ctx context.Context, kind, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(e.path(kind, key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", kind, key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s %q: %w", kind, key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s %q: %w", kind, key, err)
	}
	return nil
}

func (e *LocalEngine) save(kind, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %q: %w", kind, key, err)
	}

	target := e.path(kind, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %q: %w", kind, key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s %q: %w", kind, key, err)
	}
	return nil
}
