package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"vellum/internal/atomicfile"
	"vellum/internal/config"
	"vellum/internal/fslock"
	"vellum/internal/logging"
)

// Store mediates all access to the shared manifest file. Every mutation
// runs under the manifest lock and lands via an atomic write, so the file
// on disk is always a complete, parseable document and mutations from any
// number of cooperating processes are totally ordered.
type Store struct {
	path     string
	lock     *fslock.Lock
	logger   *slog.Logger
	workerID string

	lockTimeout         time.Duration
	stuckTimeout        time.Duration
	catalogPollInterval time.Duration

	now func() time.Time
}

// StoreOption customizes store construction.
type StoreOption func(*Store)

// WithClock overrides the store's time source (test hook).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStuckTimeout overrides the reaper timeout.
func WithStuckTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		if timeout > 0 {
			s.stuckTimeout = timeout
		}
	}
}

// WithLockTimeout overrides the manifest lock acquisition bound.
func WithLockTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

// WithCatalogPollInterval overrides the catalog-ready poll interval.
func WithCatalogPollInterval(interval time.Duration) StoreOption {
	return func(s *Store) {
		if interval > 0 {
			s.catalogPollInterval = interval
		}
	}
}

// Open returns a store for the manifest configured in cfg.
func Open(cfg *config.Config, logger *slog.Logger, opts ...StoreOption) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("manifest store requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store := &Store{
		path:                cfg.ManifestPath(),
		lock:                fslock.New(cfg.ManifestPath()),
		logger:              logging.WithComponent(logger, "manifest"),
		workerID:            uuid.NewString(),
		lockTimeout:         cfg.LockTimeout(),
		stuckTimeout:        cfg.StuckTimeout(),
		catalogPollInterval: cfg.CatalogPollInterval(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return s.path
}

// WorkerID returns the token this process stamps on its claims.
func (s *Store) WorkerID() string {
	return s.workerID
}

// Load returns a read-only snapshot of the manifest, or a fresh manifest
// when the file does not exist yet. A file that fails to parse surfaces a
// *CorruptManifestError; read paths never repair the file.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return s.decode(data)
}

func (s *Store) decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &CorruptManifestError{Path: s.path, Err: err}
	}
	if m.Units == nil {
		m.Units = make(map[int]*Unit)
	}
	return &m, nil
}

// Mutate applies fn to the manifest under the cross-process lock and
// persists the result atomically. This is the only sanctioned write path.
//
// If the on-disk file is corrupt (only possible through external damage,
// since our own writes are atomic), the damaged file is preserved as a
// .corrupt sibling and mutation restarts from an empty manifest, with a
// loud warning so the operator can recover the backup.
func (s *Store) Mutate(ctx context.Context, fn func(*Manifest) error) error {
	return s.lock.WithLock(ctx, s.lockTimeout, func() error {
		m, err := s.Load(ctx)
		if err != nil {
			var corrupt *CorruptManifestError
			if !errors.As(err, &corrupt) {
				return err
			}
			backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().UTC().Unix())
			if renameErr := os.Rename(s.path, backup); renameErr != nil {
				return fmt.Errorf("preserve corrupt manifest: %w", renameErr)
			}
			s.logger.Error("manifest was corrupt; reinitializing from empty state",
				logging.Error(corrupt),
				logging.String("backup", backup),
				logging.String(logging.FieldEventType, "manifest_corrupt"),
				logging.String(logging.FieldErrorHint, "inspect the backup file; prior progress must be re-run"),
			)
			m = NewManifest()
		}

		if err := fn(m); err != nil {
			return err
		}

		m.SchemaVersion = SchemaVersion
		m.UpdatedAt = s.now().UTC()
		if err := atomicfile.WriteJSON(s.path, m); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		return nil
	})
}

// RegisterUnits inserts pending units for newly discovered chapters.
// Existing units are left untouched so reruns resume rather than reset.
func (s *Store) RegisterUnits(ctx context.Context, seeds []UnitSeed) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		now := s.now().UTC()
		for _, seed := range seeds {
			if _, ok := m.Units[seed.ID]; ok {
				continue
			}
			m.Units[seed.ID] = &Unit{
				ID:           seed.ID,
				Ordinal:      seed.Ordinal,
				Title:        seed.Title,
				Source:       seed.Source,
				Status:       StatusPending,
				DiscoveredAt: now,
			}
		}
		return nil
	})
}

// StoreAnalysis records a unit's pass-2 payload and advances it to
// analyzed. Both pending and failed units qualify so failed units can be
// re-analyzed without manual surgery.
func (s *Store) StoreAnalysis(ctx context.Context, id int, analysis *Analysis, metrics Metrics) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		unit := m.Unit(id)
		if unit == nil {
			return fmt.Errorf("unit %d not found", id)
		}
		if !CanTransition(unit.Status, StatusAnalyzed) {
			return fmt.Errorf("unit %d: illegal transition %s -> %s", id, unit.Status, StatusAnalyzed)
		}
		now := s.now().UTC()
		unit.Status = StatusAnalyzed
		unit.Analysis = analysis
		unit.AnalyzedAt = &now
		unit.Metrics.Add(metrics)
		unit.Error = ""
		return nil
	})
}

// ClaimNextReady atomically claims the first analyzed unit in ordinal
// order, marking it illustrating and stamping the claim time and owner.
// Returns nil when no unit qualifies.
func (s *Store) ClaimNextReady(ctx context.Context) (*Unit, error) {
	var claimed *Unit
	err := s.Mutate(ctx, func(m *Manifest) error {
		for _, unit := range m.UnitsInOrder() {
			if unit.Status != StatusAnalyzed {
				continue
			}
			now := s.now().UTC()
			unit.Status = StatusIllustrating
			unit.ClaimedAt = &now
			unit.ClaimOwner = s.workerID
			snapshot := *unit
			claimed = &snapshot
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompletionResult carries the consumer's outputs for a finished unit.
type CompletionResult struct {
	Images  []string
	Metrics Metrics
}

// CompleteUnit marks a claimed unit illustrated and records its outputs.
func (s *Store) CompleteUnit(ctx context.Context, id int, result CompletionResult) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		unit := m.Unit(id)
		if unit == nil {
			return fmt.Errorf("unit %d not found", id)
		}
		if !CanTransition(unit.Status, StatusIllustrated) {
			return fmt.Errorf("unit %d: illegal transition %s -> %s", id, unit.Status, StatusIllustrated)
		}
		now := s.now().UTC()
		unit.Status = StatusIllustrated
		unit.CompletedAt = &now
		unit.Images = append([]string(nil), result.Images...)
		unit.Metrics.Add(result.Metrics)
		unit.ClaimOwner = ""
		unit.Error = ""
		return nil
	})
}

// FailUnit marks a unit failed with the given cause. Failures are isolated
// per unit; the surrounding loop keeps going.
func (s *Store) FailUnit(ctx context.Context, id int, cause error) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		unit := m.Unit(id)
		if unit == nil {
			return fmt.Errorf("unit %d not found", id)
		}
		if !CanTransition(unit.Status, StatusFailed) {
			return fmt.Errorf("unit %d: illegal transition %s -> %s", id, unit.Status, StatusFailed)
		}
		unit.Status = StatusFailed
		unit.ClaimOwner = ""
		if cause != nil {
			unit.Error = cause.Error()
		}
		return nil
	})
}

// RetryFailed resets failed units (optionally a subset) back to pending so
// the producer re-analyzes them. Returns the number of units reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...int) (int, error) {
	var reset int
	err := s.Mutate(ctx, func(m *Manifest) error {
		requested := make(map[int]struct{}, len(ids))
		for _, id := range ids {
			requested[id] = struct{}{}
		}
		for _, unit := range m.UnitsInOrder() {
			if unit.Status != StatusFailed {
				continue
			}
			if len(requested) > 0 {
				if _, ok := requested[unit.ID]; !ok {
					continue
				}
			}
			unit.Status = StatusPending
			unit.Error = ""
			reset++
		}
		if reset > 0 {
			m.ProducerComplete = false
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// ReapStuck resets units stuck in illustrating past the stuck timeout back
// to analyzed so another worker can claim them. Each recovery is logged.
// Safe to run concurrently with itself; the manifest lock serializes it.
func (s *Store) ReapStuck(ctx context.Context) (int, error) {
	var reaped int
	err := s.Mutate(ctx, func(m *Manifest) error {
		cutoff := s.now().Add(-s.stuckTimeout)
		for _, unit := range m.UnitsInOrder() {
			if unit.Status != StatusIllustrating {
				continue
			}
			if unit.ClaimedAt == nil || unit.ClaimedAt.After(cutoff) {
				continue
			}
			s.logger.Warn("reaped stuck unit; resetting to analyzed",
				logging.Int(logging.FieldUnitID, unit.ID),
				logging.Time("claimed_at", *unit.ClaimedAt),
				logging.String("claim_owner", unit.ClaimOwner),
				logging.String(logging.FieldEventType, "unit_reaped"),
			)
			unit.Status = StatusAnalyzed
			unit.ClaimedAt = nil
			unit.ClaimOwner = ""
			reaped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reaped, nil
}

// SetCatalogReady publishes the catalog-ready gate consumers wait on.
func (s *Store) SetCatalogReady(ctx context.Context) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		m.CatalogReady = true
		return nil
	})
}

// MarkProducerComplete records that pass 2 has visited every unit.
func (s *Store) MarkProducerComplete(ctx context.Context) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		m.ProducerComplete = true
		return nil
	})
}

// MarkConsumerComplete records that the consumer drained the backlog.
func (s *Store) MarkConsumerComplete(ctx context.Context) error {
	return s.Mutate(ctx, func(m *Manifest) error {
		m.ConsumerComplete = true
		return nil
	})
}

// WaitForCatalogReady polls until the producer publishes the catalog, the
// timeout elapses (ErrCatalogTimeout), or ctx is cancelled.
func (s *Store) WaitForCatalogReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		m, err := s.Load(ctx)
		if err != nil {
			return err
		}
		if m.CatalogReady {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrCatalogTimeout, timeout)
		}

		wait := s.catalogPollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// HealthSummary aggregates manifest state for diagnostic output.
type HealthSummary struct {
	Total        int
	Pending      int
	Analyzed     int
	Illustrating int
	Illustrated  int
	Failed       int

	CatalogReady     bool
	ProducerComplete bool
	ConsumerComplete bool
}

// Health returns aggregate counts for the status command.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	m, err := s.Load(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	counts := m.Counts()
	return HealthSummary{
		Total:            len(m.Units),
		Pending:          counts[StatusPending],
		Analyzed:         counts[StatusAnalyzed],
		Illustrating:     counts[StatusIllustrating],
		Illustrated:      counts[StatusIllustrated],
		Failed:           counts[StatusFailed],
		CatalogReady:     m.CatalogReady,
		ProducerComplete: m.ProducerComplete,
		ConsumerComplete: m.ConsumerComplete,
	}, nil
}
