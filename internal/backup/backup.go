// Package backup exports the navigation database to timestamped JSON
// snapshots. Exports are triggered by data-change notifications with a
// debounce, plus a periodic safety export, and old snapshots are pruned.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zczy-k/ai-nav-item/internal/database"
	"github.com/zczy-k/ai-nav-item/internal/models"
)

const filePrefix = "ainav-backup-"

// Snapshot is the on-disk backup format.
type Snapshot struct {
	ExportedAt time.Time          `json:"exported_at"`
	Categories []*models.Category `json:"categories"`
	Items      []*models.NavItem  `json:"items"`
}

// Config controls backup behavior.
type Config struct {
	// Dir is the directory snapshots are written to.
	Dir string

	// Keep is how many snapshots to retain. Older ones are pruned.
	Keep int

	// Debounce is how long to wait after the last change notification
	// before exporting, so bursts of writes coalesce into one snapshot.
	Debounce time.Duration

	// Interval is the periodic safety export interval. Zero disables it.
	Interval time.Duration
}

// Manager watches for data changes and writes backup snapshots.
type Manager struct {
	store   *database.Store
	cfg     Config
	logger  zerolog.Logger
	changes chan struct{}
}

// NewManager creates a backup manager. Run must be called for change
// notifications to take effect.
func NewManager(store *database.Store, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Second
	}
	return &Manager{
		store:   store,
		cfg:     cfg,
		logger:  logger.With().Str("component", "backup").Logger(),
		changes: make(chan struct{}, 1),
	}
}

// NotifyChange signals that navigation data changed. It never blocks;
// notifications arriving while one is pending are coalesced.
func (m *Manager) NotifyChange() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Run processes change notifications until ctx is canceled. Exports are
// debounced so a burst of changes produces a single snapshot.
func (m *Manager) Run(ctx context.Context) {
	var debounce *time.Timer
	var fire <-chan time.Time

	var safety <-chan time.Time
	if m.cfg.Interval > 0 {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		safety = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-m.changes:
			if debounce == nil {
				debounce = time.NewTimer(m.cfg.Debounce)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-fire:
					default:
					}
				}
				debounce.Reset(m.cfg.Debounce)
			}
		case <-fire:
			debounce = nil
			fire = nil
			m.export(ctx)
		case <-safety:
			m.export(ctx)
		}
	}
}

func (m *Manager) export(ctx context.Context) {
	path, err := m.Export(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Backup export failed")
		return
	}
	m.logger.Info().Str("path", path).Msg("Backup written")
}

// Export writes a snapshot immediately and prunes old ones. It returns
// the path of the written file.
func (m *Manager) Export(ctx context.Context) (string, error) {
	categories, err := m.store.ListCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("list categories: %w", err)
	}
	items, err := m.store.ListItems(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("list items: %w", err)
	}

	snap := Snapshot{
		ExportedAt: time.Now(),
		Categories: categories,
		Items:      items,
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("%s%s-%s.json",
		filePrefix,
		snap.ExportedAt.Format("20060102-150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(m.cfg.Dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	if err := m.prune(); err != nil {
		m.logger.Warn().Err(err).Msg("Backup prune failed")
	}

	return path, nil
}

// prune removes the oldest snapshots beyond the retention count. The
// timestamp in the file name sorts lexicographically, so name order is
// age order.
func (m *Manager) prune() error {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= m.cfg.Keep {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-m.cfg.Keep] {
		if err := os.Remove(filepath.Join(m.cfg.Dir, name)); err != nil {
			return fmt.Errorf("remove old snapshot: %w", err)
		}
	}
	return nil
}
