package directory

import (
	"context"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// DeleteUntracked deletes the records of kind in owner's storage for
// recipient whose ids are not in tracked, and returns how many were deleted.
func DeleteUntracked(ctx context.Context, store models.DirectoryStore, kind models.RecordKind, owner, recipient string, tracked map[string]struct{}) (int, error) {
	ids, err := store.ListIDs(ctx, kind, owner, recipient)
	if err != nil {
		return 0, err
	}
	var orphans []string
	for _, id := range ids {
		if _, ok := tracked[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	return store.DeleteBatch(ctx, kind, owner, recipient, orphans)
}
