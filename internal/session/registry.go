package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/storage/models"
)

// LoadDocuments replaces the registry with the service's list. A failed
// fetch leaves an empty, loaded registry and returns ErrFetch. The
// selection is pruned to surviving ids either way.
func (c *Controller) LoadDocuments(ctx context.Context) error {
	docs, err := c.svc.ListDocuments(ctx)
	if err != nil {
		c.log.Warn("Failed to load documents", zap.Error(err))
		docs = nil
	}
	metrics.RegistryReloads.WithLabelValues(metrics.Status(err)).Inc()

	c.mu.Lock()
	c.state.Documents = append([]models.Document(nil), docs...)
	c.state.DocumentsLoaded = true
	c.state.Selected = pruneSelection(c.state.Selected, c.state.Documents)
	update := Update{Documents: c.state.Documents, Selected: c.state.Selected}
	c.mu.Unlock()

	c.events.Publish(pubsub.DocumentsEvent, update)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return nil
}

// EnsureDocumentsLoaded performs the first load lazily.
func (c *Controller) EnsureDocumentsLoaded(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.state.DocumentsLoaded
	c.mu.Unlock()

	if loaded {
		return nil
	}
	return c.LoadDocuments(ctx)
}

func (c *Controller) ToggleSelect(id int64) error {
	c.mu.Lock()
	if c.state.documentIndex(id) < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}

	if c.state.isSelected(id) {
		c.state.Selected = without(c.state.Selected, id)
	} else {
		selected := make([]int64, 0, len(c.state.Selected)+1)
		selected = append(selected, c.state.Selected...)
		c.state.Selected = append(selected, id)
	}
	c.mu.Unlock()

	c.publishState()
	return nil
}

// ToggleSelectAll deselects everything when every document is already
// selected and selects every document otherwise.
func (c *Controller) ToggleSelectAll() {
	c.mu.Lock()
	if len(c.state.Selected) == len(c.state.Documents) {
		c.state.Selected = nil
	} else {
		selected := make([]int64, 0, len(c.state.Documents))
		for _, d := range c.state.Documents {
			selected = append(selected, d.ID)
		}
		c.state.Selected = selected
	}
	c.mu.Unlock()

	c.publishState()
}

// RemoveDocument deletes a document through the service, drops it locally
// and reloads the registry. On failure nothing changes.
func (c *Controller) RemoveDocument(ctx context.Context, id int64) error {
	c.mu.Lock()
	known := c.state.documentIndex(id) >= 0
	c.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}

	if err := c.svc.DeleteDocument(ctx, id); err != nil {
		metrics.DocumentDeletes.WithLabelValues("error").Inc()
		c.log.Error("Failed to delete document", zap.Int64("document_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}
	metrics.DocumentDeletes.WithLabelValues("success").Inc()

	c.mu.Lock()
	if i := c.state.documentIndex(id); i >= 0 {
		docs := make([]models.Document, 0, len(c.state.Documents)-1)
		docs = append(docs, c.state.Documents[:i]...)
		c.state.Documents = append(docs, c.state.Documents[i+1:]...)
	}
	c.state.Selected = without(c.state.Selected, id)
	c.mu.Unlock()

	c.log.Info("Document deleted", zap.Int64("document_id", id))

	if err := c.LoadDocuments(ctx); err != nil {
		c.log.Warn("Reload after delete failed", zap.Error(err))
	}
	return nil
}

func pruneSelection(selected []int64, docs []models.Document) []int64 {
	known := make(map[int64]struct{}, len(docs))
	for _, d := range docs {
		known[d.ID] = struct{}{}
	}

	var kept []int64
	for _, id := range selected {
		if _, ok := known[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}

func without(ids []int64, id int64) []int64 {
	var out []int64
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
