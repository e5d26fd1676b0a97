// Package snapshot implements a file-backed profile provider: a JSON snapshot
// loaded into memory, used by the offline rank command and by deployments
// without a database.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ErrProfileNotFound is returned by GetProfile for unknown IDs.
var ErrProfileNotFound = shared.NewDomainError("snapshot", "GetProfile", shared.ErrNotFound, "profile not found")

// Provider implements matching.ProfileProvider over an in-memory snapshot.
type Provider struct {
	mu       sync.RWMutex
	path     string
	byID     map[string]matching.Profile
	profiles []matching.Profile
}

// document is the object form of a snapshot file; a bare array is accepted too.
type document struct {
	Profiles []matching.Profile `json:"profiles"`
}

// Load reads a snapshot file.
func Load(path string) (*Provider, error) {
	p := &Provider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProvider builds a provider from profiles already in memory.
func NewProvider(profiles []matching.Profile) *Provider {
	p := &Provider{}
	p.replace(profiles)
	return p
}

// Reload re-reads the snapshot file. The previous snapshot stays in place on error.
func (p *Provider) Reload() error {
	if p.path == "" {
		return errors.New("snapshot: provider has no backing file")
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("snapshot: read %s: %w", p.path, err)
	}

	profiles, err := Parse(data)
	if err != nil {
		return fmt.Errorf("snapshot: %s: %w", p.path, err)
	}

	p.replace(profiles)
	return nil
}

// Parse decodes a snapshot document and normalises role and stage spellings.
// Duplicate IDs are rejected.
func Parse(data []byte) ([]matching.Profile, error) {
	data = bytes.TrimSpace(data)

	var profiles []matching.Profile
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &profiles); err != nil {
			return nil, fmt.Errorf("decode profiles: %w", err)
		}
	} else {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		profiles = doc.Profiles
	}

	seen := make(map[string]struct{}, len(profiles))
	for i := range profiles {
		normalise(&profiles[i])
		id := profiles[i].ID
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate profile id %q", id)
		}
		seen[id] = struct{}{}
	}
	return profiles, nil
}

func normalise(p *matching.Profile) {
	if role, ok := matching.ParseRole(string(p.Role)); ok {
		p.Role = role
	}
	if p.Stage != "" {
		stage, _ := matching.ParseStage(string(p.Stage))
		p.Stage = stage
	}
}

func (p *Provider) replace(profiles []matching.Profile) {
	byID := make(map[string]matching.Profile, len(profiles))
	sorted := make([]matching.Profile, 0, len(profiles))
	for _, prof := range profiles {
		byID[prof.ID] = prof
		sorted = append(sorted, prof)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	p.mu.Lock()
	p.byID = byID
	p.profiles = sorted
	p.mu.Unlock()
}

// GetProfile returns a profile by ID.
func (p *Provider) GetProfile(_ context.Context, id string) (*matching.Profile, error) {
	p.mu.RLock()
	prof, ok := p.byID[id]
	p.mu.RUnlock()

	if !ok {
		return nil, shared.Detail(ErrProfileNotFound, fmt.Errorf("id %q", id))
	}
	return &prof, nil
}

// ListCandidates returns every profile except the requester, ordered by ID.
func (p *Provider) ListCandidates(ctx context.Context, requesterID string) ([]matching.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	pool := make([]matching.Profile, 0, len(p.profiles))
	for _, prof := range p.profiles {
		if prof.ID != requesterID {
			pool = append(pool, prof)
		}
	}
	return pool, nil
}

// Len returns the number of profiles in the snapshot.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.profiles)
}
