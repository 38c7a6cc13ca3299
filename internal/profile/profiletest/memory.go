// AngelaMos | 2026
// memory.go

// Package profiletest provides an in-memory profile.Repository for tests.
package profiletest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/profile"
)

type Profiles struct {
	mu   sync.Mutex
	rows map[string]profile.Profile

	// SaveErr and PreferencesErr, when set, are returned by the next calls.
	SaveErr        error
	PreferencesErr error

	Saves int
	Locks int
}

func NewProfiles(seed ...*profile.Profile) *Profiles {
	m := &Profiles{rows: make(map[string]profile.Profile)}
	for _, p := range seed {
		m.rows[p.UserID] = *p
	}
	return m
}

func (m *Profiles) Insert(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[p.UserID]; ok {
		return fmt.Errorf("insert profile: %w", core.ErrDuplicateKey)
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.rows[p.UserID] = *p
	return nil
}

func (m *Profiles) EnsureExists(ctx context.Context, p *profile.Profile) (bool, error) {
	m.mu.Lock()
	_, exists := m.rows[p.UserID]
	m.mu.Unlock()

	if exists {
		return false, nil
	}
	if err := m.Insert(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Profiles) Get(_ context.Context, userID string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.rows[userID]
	if !ok {
		return nil, fmt.Errorf("get profile: %w", core.ErrNotFound)
	}
	return &p, nil
}

func (m *Profiles) GetForUpdate(ctx context.Context, userID string) (*profile.Profile, error) {
	m.mu.Lock()
	m.Locks++
	m.mu.Unlock()

	return m.Get(ctx, userID)
}

func (m *Profiles) GetByBillingCustomerID(
	_ context.Context,
	customerID string,
) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.rows {
		if p.BillingCustomerID != nil && *p.BillingCustomerID == customerID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("get profile by customer: %w", core.ErrNotFound)
}

func (m *Profiles) Save(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		err := m.SaveErr
		m.SaveErr = nil
		return err
	}
	if _, ok := m.rows[p.UserID]; !ok {
		return fmt.Errorf("save profile: %w", core.ErrNotFound)
	}
	p.UpdatedAt = time.Now().UTC()
	m.rows[p.UserID] = *p
	m.Saves++
	return nil
}

func (m *Profiles) UpdatePreferences(_ context.Context, userID, goal, focus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PreferencesErr != nil {
		return m.PreferencesErr
	}
	p, ok := m.rows[userID]
	if !ok {
		return fmt.Errorf("update preferences: %w", core.ErrNotFound)
	}
	if p.PrimaryGoal == nil || *p.PrimaryGoal == "" {
		p.PrimaryGoal = nonEmpty(goal)
	}
	if p.FocusArea == nil || *p.FocusArea == "" {
		p.FocusArea = nonEmpty(focus)
	}
	m.rows[userID] = p
	return nil
}

func (m *Profiles) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, userID)
	return nil
}

// Snapshot returns a copy of the stored row, or nil.
func (m *Profiles) Snapshot(userID string) *profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.rows[userID]
	if !ok {
		return nil
	}
	return &p
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ profile.Repository = (*Profiles)(nil)

// Tx runs fn directly. The in-memory stores ignore the DBTX they are given.
type Tx struct {
	Calls int
}

func (t *Tx) WithinTx(_ context.Context, fn func(tx core.DBTX) error) error {
	t.Calls++
	return fn(nil)
}

var _ core.Transactor = (*Tx)(nil)
