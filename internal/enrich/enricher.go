package enrich

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zczy-k/ai-nav-item/internal/database"
	"github.com/zczy-k/ai-nav-item/internal/models"
	"github.com/zczy-k/ai-nav-item/pkg/batch"
)

// Enricher processes one nav item end to end: generate metadata, persist
// it. It implements batch.Processor; the batch engine owns retries, pacing,
// and concurrency.
type Enricher struct {
	store  *database.Store
	client *Client
	logger zerolog.Logger
}

// NewEnricher creates the item processor used by enrichment tasks.
func NewEnricher(store *database.Store, client *Client) *Enricher {
	return &Enricher{
		store:  store,
		client: client,
		logger: log.With().Str("component", "enrich").Logger(),
	}
}

// WorkItems converts store rows into engine work items. Item IDs carry the
// database row ID; labels carry the title shown in progress snapshots.
func WorkItems(items []*models.NavItem) []batch.Item {
	out := make([]batch.Item, len(items))
	for i, it := range items {
		out[i] = batch.Item{
			ID:    strconv.FormatInt(it.ID, 10),
			Label: it.Title,
		}
	}
	return out
}

// ProcessItem implements batch.Processor. A reply carrying a description but
// no tags is stored as-is and reported as partial success; everything else
// either succeeds fully or fails with a classifiable error.
func (e *Enricher) ProcessItem(ctx context.Context, item batch.Item) error {
	id, err := strconv.ParseInt(item.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q: %w", item.ID, err)
	}

	nav, err := e.store.GetItem(ctx, id)
	if err != nil {
		return fmt.Errorf("load item %d: %w", id, err)
	}

	meta, err := e.client.GenerateMetadata(ctx, nav.Title, nav.URL)
	if err != nil {
		return err
	}

	if meta.Description == "" {
		return fmt.Errorf("provider returned no description for %q", nav.Title)
	}

	tags := strings.Join(meta.Tags, ", ")
	if err := e.store.UpdateItemMetadata(ctx, id, meta.Description, tags); err != nil {
		return fmt.Errorf("store metadata for item %d: %w", id, err)
	}

	if len(meta.Tags) == 0 {
		e.logger.Warn().
			Str("item_id", item.ID).
			Str("title", nav.Title).
			Msg("Metadata stored without tags")
		return &batch.PartialError{Err: fmt.Errorf("no tags generated for %q", nav.Title)}
	}

	e.logger.Debug().
		Str("item_id", item.ID).
		Str("title", nav.Title).
		Int("tags", len(meta.Tags)).
		Msg("Item enriched")
	return nil
}
