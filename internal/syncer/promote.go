package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talentflow/offlinecache/internal/classifier"
	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/drafts"
	"github.com/talentflow/offlinecache/internal/models"
)

// PromoteDraft turns a saved generic draft into a queued CREATE by
// inferring its entity type from its field names. Below the classifier's
// confidence threshold the draft is left untouched and the miss is only
// logged; guessing wrong would enqueue garbage against the wrong table.
func (e *Engine) PromoteDraft(ctx context.Context, draftStore *drafts.Store, key, userID string) (*models.QueueItem, error) {
	raw, err := draftStore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if drafts.IsLocked(raw) {
		return nil, common.ErrDraftLocked
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("draft %s is not an object: %w", key, err)
	}

	result, ok := classifier.Classify(payload)
	if !ok {
		e.log.Info(ctx, "draft could not be classified",
			"key", key, "bestGuess", result.Type, "confidence", result.Confidence)
		return nil, common.ErrUnclassified
	}

	item, err := e.Mutate(ctx, models.OpCreate, result.Type, models.Entity{
		UserID:  userID,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}

	if err := draftStore.Delete(ctx, key); err != nil {
		e.log.Warn(ctx, "promoted draft could not be deleted", "key", key, "error", err)
	}

	e.log.Info(ctx, "draft promoted",
		"key", key, "entityType", result.Type, "confidence", result.Confidence)
	return item, nil
}
