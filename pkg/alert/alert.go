package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/medsearch/internal/store"
)

// Digest is the impression-volume summary sent to alert destinations.
type Digest struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Timeframe string         `json:"timeframe"`
	Total     int            `json:"total"`
	Buckets   []store.Bucket `json:"buckets"`
}

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, d *Digest) error
}

// Manager broadcasts digests to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a digest to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, d *Digest) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
