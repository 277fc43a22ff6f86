package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MKhiriev/go-browser-sync/internal/crypto"
	"github.com/MKhiriev/go-browser-sync/internal/logger"
	"github.com/MKhiriev/go-browser-sync/internal/store"
	"github.com/MKhiriev/go-browser-sync/models"
)

// bookmarksStrategy is the tree-shaped response handler. The local tree is
// materialized as an arena for the duration of one pass; structure is
// resolved through batch-wide indices so folder moves and children do not
// depend on receipt order.
type bookmarksStrategy struct {
	logger *logger.Logger
}

func newBookmarksStrategy(log *logger.Logger) *bookmarksStrategy {
	return &bookmarksStrategy{logger: log}
}

func (b *bookmarksStrategy) PrepareForFirstSync(ctx context.Context, tx store.Tx, now time.Time) error {
	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return fmt.Errorf("load bookmark tree: %w", err)
	}

	for id, node := range tree.Nodes {
		if node.PendingDeletion {
			continue
		}
		t := now
		node.ModifiedAt = &t
		if err = tx.Metadata().SetLastModified(ctx, id, &now); err != nil {
			return fmt.Errorf("mark bookmark %s modified: %w", id, err)
		}
	}
	return tx.Bookmarks().SaveTree(ctx, tree)
}

func (b *bookmarksStrategy) CollectChanges(ctx context.Context, tx store.Tx, crypter crypto.Crypter, key []byte) ([]models.SyncableRecord, error) {
	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bookmark tree: %w", err)
	}

	var records []models.SyncableRecord
	for id, node := range tree.Nodes {
		if node.ModifiedAt == nil {
			continue
		}

		record := models.SyncableRecord{ID: id, ClientLastModified: node.ModifiedAt}
		if node.PendingDeletion {
			record.Deleted = true
		} else {
			payload, err := json.Marshal(models.BookmarkPayload{
				ID:       id,
				Title:    node.Title,
				URL:      node.URL,
				IsFolder: node.IsFolder,
				ParentID: node.ParentID,
				Children: node.Children,
			})
			if err != nil {
				return nil, fmt.Errorf("encode bookmark %s: %w", id, err)
			}
			if record.Payload, err = crypter.Encrypt(payload, key); err != nil {
				return nil, fmt.Errorf("encrypt bookmark %s: %w", id, err)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// decodedBookmark pairs one received record with its decrypted payload.
// Payload is nil for tombstones.
type decodedBookmark struct {
	record  models.SyncableRecord
	payload *models.BookmarkPayload
}

func (b *bookmarksStrategy) Apply(ctx context.Context, tx store.Tx, received []models.SyncableRecord, opts applyOptions) (applyStats, error) {
	var stats applyStats

	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return stats, fmt.Errorf("load bookmark tree: %w", err)
	}

	// Decode phase. Duplicate ids within one batch collapse to the last
	// record in arrival order.
	byID := make(map[string]*decodedBookmark, len(received))
	var order []string
	for _, record := range received {
		d := &decodedBookmark{record: record}
		if !record.Deleted {
			plaintext, skip, err := decryptRecordPayload(record, opts)
			if err != nil {
				return stats, err
			}
			if skip {
				b.logger.Warn().Str("id", record.ID).Msg("skipping malformed bookmark record")
				stats.skipped++
				continue
			}
			var payload models.BookmarkPayload
			if err = json.Unmarshal(plaintext, &payload); err != nil {
				return stats, fmt.Errorf("decode bookmark %s: %w", record.ID, err)
			}
			d.payload = &payload
		}
		if _, seen := byID[record.ID]; !seen {
			order = append(order, record.ID)
		}
		byID[record.ID] = d
	}

	// Index phase: resolve structure across the whole batch up front so
	// folder moves and children need no per-node lookups and no receipt
	// order.
	parentToChildren := make(map[string][]string)
	childToParents := make(map[string][]string)
	for _, id := range order {
		d := byID[id]
		if d.payload == nil {
			continue
		}
		if d.payload.IsFolder || models.IsRootID(id) {
			parentToChildren[id] = d.payload.Children
			for _, child := range d.payload.Children {
				childToParents[child] = append(childToParents[child], id)
			}
		}
		if d.payload.ParentID != "" {
			childToParents[id] = append(childToParents[id], d.payload.ParentID)
		}
	}

	// Snapshot favorites membership before mutation; additions found
	// afterwards are propagated across form factors.
	priorFavorites := make(map[string]map[string]struct{}, len(models.FavoritesRootIDs))
	for _, rootID := range models.FavoritesRootIDs {
		set := make(map[string]struct{})
		for _, id := range tree.Favorites(rootID) {
			set[id] = struct{}{}
		}
		priorFavorites[rootID] = set
	}

	skipped := make(map[string]struct{})
	for _, id := range order {
		win, err := localWins(ctx, tx, id, opts)
		if err != nil {
			return stats, err
		}
		if win {
			skipped[id] = struct{}{}
			stats.skipped++
		}
	}

	// Upsert phase: materialize every surviving non-tombstone node first,
	// so the structural phase can attach children regardless of the order
	// records arrived in.
	for _, id := range order {
		d := byID[id]
		if _, skip := skipped[id]; skip || d.payload == nil {
			continue
		}
		node := tree.Node(id)
		if node == nil {
			node = &models.BookmarkNode{ID: id}
			tree.Upsert(node)
		}
		if !models.IsRootID(id) {
			node.Title = d.payload.Title
			node.URL = d.payload.URL
			node.IsFolder = d.payload.IsFolder
		}
		node.PendingDeletion = false
		node.ModifiedAt = nil
	}

	// Structural phase: tombstones, parent pointers, children.
	for _, id := range order {
		d := byID[id]
		if _, skip := skipped[id]; skip {
			continue
		}

		if d.record.Deleted {
			tree.MarkPendingDeletion(id)
			if err = tx.Metadata().SetLastModified(ctx, id, nil); err != nil {
				return stats, fmt.Errorf("clear metadata %s: %w", id, err)
			}
			stats.applied++
			continue
		}

		if parentID := b.resolveParent(id, d.payload, childToParents); parentID != "" {
			// A parent absent from both the local tree and the batch
			// leaves the node an orphan; a later cycle re-parents it.
			if tree.Node(parentID) != nil {
				tree.Attach(parentID, id)
			}
		}

		if children, isFolder := parentToChildren[id]; isFolder {
			if opts.deduplicate {
				// First sync: remote order wins positionally.
				tree.ReplaceChildren(id, children)
			} else if models.IsFavoritesRootID(id) {
				// A favorites record carries the full membership
				// of its list, so absent members are unfavorited.
				b.reconcileFavorites(tree, id, children)
			} else {
				// Steady state: membership only; ordering of
				// untouched siblings is preserved.
				for _, child := range children {
					if tree.Node(child) != nil {
						tree.Attach(id, child)
					}
				}
			}
		}

		if err = tx.Metadata().SetLastModified(ctx, id, nil); err != nil {
			return stats, fmt.Errorf("clear metadata %s: %w", id, err)
		}
		stats.applied++
	}

	b.propagateFavorites(tree, priorFavorites)

	if err = tx.Bookmarks().SaveTree(ctx, tree); err != nil {
		return stats, fmt.Errorf("save bookmark tree: %w", err)
	}
	return stats, nil
}

// resolveParent picks a node's parent: the payload's own parent pointer
// first, otherwise the last folder in the batch that lists the node as a
// child.
func (b *bookmarksStrategy) resolveParent(id string, payload *models.BookmarkPayload, childToParents map[string][]string) string {
	if payload.ParentID != "" {
		return payload.ParentID
	}
	if parents := childToParents[id]; len(parents) > 0 {
		return parents[len(parents)-1]
	}
	return ""
}

// reconcileFavorites applies a received favorites membership list in steady
// state: local members absent from the list are removed, new members are
// appended. Retained entries keep their relative local order.
func (b *bookmarksStrategy) reconcileFavorites(tree *models.BookmarkTree, rootID string, members []string) {
	received := make(map[string]struct{}, len(members))
	for _, id := range members {
		received[id] = struct{}{}
	}
	for _, id := range append([]string(nil), tree.Favorites(rootID)...) {
		if _, keep := received[id]; !keep {
			tree.RemoveFavorite(rootID, id)
		}
	}
	for _, id := range members {
		if tree.Node(id) != nil {
			tree.AddFavorite(rootID, id)
		}
	}
}

// propagateFavorites mirrors membership changes across the unified and
// form-factor favorites lists: a member added to the unified list joins the
// form-factor lists and vice versa, and a member dropped from one list
// leaves the others. Appending keeps the relative order of entries the
// batch did not touch. When one batch both adds and removes the same
// member through different lists, the addition wins.
func (b *bookmarksStrategy) propagateFavorites(tree *models.BookmarkTree, prior map[string]map[string]struct{}) {
	added := func(rootID string) []string {
		var ids []string
		for _, id := range tree.Favorites(rootID) {
			if _, existed := prior[rootID][id]; !existed {
				ids = append(ids, id)
			}
		}
		return ids
	}
	removed := func(rootID string) []string {
		current := make(map[string]struct{})
		for _, id := range tree.Favorites(rootID) {
			current[id] = struct{}{}
		}
		var ids []string
		for id := range prior[rootID] {
			if _, still := current[id]; !still {
				ids = append(ids, id)
			}
		}
		return ids
	}

	for _, id := range added(models.FavoritesRootID) {
		tree.AddFavorite(models.DesktopFavoritesRootID, id)
		tree.AddFavorite(models.MobileFavoritesRootID, id)
	}
	for _, rootID := range []string{models.DesktopFavoritesRootID, models.MobileFavoritesRootID} {
		for _, id := range added(rootID) {
			tree.AddFavorite(models.FavoritesRootID, id)
		}
	}

	for _, id := range removed(models.FavoritesRootID) {
		tree.RemoveFavorite(models.DesktopFavoritesRootID, id)
		tree.RemoveFavorite(models.MobileFavoritesRootID, id)
	}
	for _, rootID := range []string{models.DesktopFavoritesRootID, models.MobileFavoritesRootID} {
		for _, id := range removed(rootID) {
			tree.RemoveFavorite(models.FavoritesRootID, id)
		}
	}
}

func (b *bookmarksStrategy) Purge(ctx context.Context, tx store.Tx, id string) error {
	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return fmt.Errorf("load bookmark tree: %w", err)
	}
	tree.Purge(id)
	return tx.Bookmarks().SaveTree(ctx, tree)
}

func (b *bookmarksStrategy) Resurrect(ctx context.Context, tx store.Tx, id string) error {
	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return fmt.Errorf("load bookmark tree: %w", err)
	}
	node := tree.Node(id)
	if node == nil {
		return nil
	}
	node.PendingDeletion = false
	node.ModifiedAt = nil
	return tx.Bookmarks().SaveTree(ctx, tree)
}

func (b *bookmarksStrategy) ClearMarker(ctx context.Context, tx store.Tx, id string) error {
	tree, err := tx.Bookmarks().Tree(ctx)
	if err != nil {
		return fmt.Errorf("load bookmark tree: %w", err)
	}
	node := tree.Node(id)
	if node == nil || node.ModifiedAt == nil {
		return nil
	}
	node.ModifiedAt = nil
	return tx.Bookmarks().SaveTree(ctx, tree)
}
