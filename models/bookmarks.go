package models

import "time"

// Well-known bookmark folder identifiers. The unified favorites root mirrors
// membership of the per-form-factor roots so devices of different form
// factors converge on one favorites set.
const (
	BookmarksRootID        = "bookmarks_root"
	FavoritesRootID        = "favorites_root"
	DesktopFavoritesRootID = "desktop_favorites_root"
	MobileFavoritesRootID  = "mobile_favorites_root"
)

// FavoritesRootIDs lists every favorites folder, unified root first.
var FavoritesRootIDs = []string{FavoritesRootID, DesktopFavoritesRootID, MobileFavoritesRootID}

// IsRootID reports whether id names one of the fixed roots that must never
// be deleted or re-parented.
func IsRootID(id string) bool {
	switch id {
	case BookmarksRootID, FavoritesRootID, DesktopFavoritesRootID, MobileFavoritesRootID:
		return true
	}
	return false
}

// IsFavoritesRootID reports whether id names a favorites list. Favorites
// roots hold membership lists, not ownership: a member keeps its real parent
// folder and may appear in several favorites lists at once.
func IsFavoritesRootID(id string) bool {
	switch id {
	case FavoritesRootID, DesktopFavoritesRootID, MobileFavoritesRootID:
		return true
	}
	return false
}

// BookmarkNode is one entry of the bookmark tree. Nodes live in an arena
// (BookmarkTree) and reference each other by identifier only, so orphaning
// and re-parenting are index rewrites rather than pointer surgery.
type BookmarkNode struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	IsFolder bool   `json:"is_folder,omitempty"`
	ParentID string `json:"parent_id,omitempty"`

	// Children holds the ordered child identifiers of a folder. Order is
	// significant for favorites.
	Children []string `json:"children,omitempty"`

	// ModifiedAt is the unacknowledged local modification time. Nil once
	// the server has confirmed the change.
	ModifiedAt *time.Time `json:"modified_at,omitempty"`

	// PendingDeletion marks a node that was tombstoned but is retained
	// until the deletion has propagated; physical removal happens later.
	PendingDeletion bool `json:"pending_deletion,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *BookmarkNode) Clone() *BookmarkNode {
	c := *n
	if n.Children != nil {
		c.Children = append([]string(nil), n.Children...)
	}
	if n.ModifiedAt != nil {
		t := *n.ModifiedAt
		c.ModifiedAt = &t
	}
	return &c
}

// BookmarkTree is the arena holding every bookmark node of one device,
// keyed by identifier. A node whose ParentID is empty and which is not a
// root is an orphan awaiting re-parenting by a later sync cycle.
type BookmarkTree struct {
	Nodes map[string]*BookmarkNode
}

// NewBookmarkTree returns a tree seeded with the four fixed root folders.
func NewBookmarkTree() *BookmarkTree {
	t := &BookmarkTree{Nodes: make(map[string]*BookmarkNode)}
	for _, id := range append([]string{BookmarksRootID}, FavoritesRootIDs...) {
		t.Nodes[id] = &BookmarkNode{ID: id, IsFolder: true}
	}
	return t
}

// Node returns the node with the given id, or nil.
func (t *BookmarkTree) Node(id string) *BookmarkNode {
	return t.Nodes[id]
}

// Upsert inserts node into the arena, replacing any node with the same id.
func (t *BookmarkTree) Upsert(node *BookmarkNode) {
	t.Nodes[node.ID] = node
}

// Detach removes id from its parent's children list and clears its
// ParentID. The node itself stays in the arena. No-op for roots and for
// nodes that are already orphans.
func (t *BookmarkTree) Detach(id string) {
	node := t.Nodes[id]
	if node == nil || IsRootID(id) {
		return
	}
	if parent := t.Nodes[node.ParentID]; parent != nil {
		parent.Children = removeID(parent.Children, id)
	}
	node.ParentID = ""
}

// Attach makes parentID the parent of id, appending id to the parent's
// children if it is not already a member. The child is detached from any
// previous parent first.
func (t *BookmarkTree) Attach(parentID, id string) {
	if IsFavoritesRootID(parentID) {
		t.AddFavorite(parentID, id)
		return
	}
	node := t.Nodes[id]
	parent := t.Nodes[parentID]
	if node == nil || parent == nil || IsRootID(id) {
		return
	}
	if node.ParentID != "" && node.ParentID != parentID {
		t.Detach(id)
	}
	node.ParentID = parentID
	if !containsID(parent.Children, id) {
		parent.Children = append(parent.Children, id)
	}
}

// ReplaceChildren overwrites a folder's ordered children list and rewrites
// the ParentID of every present child accordingly. Children not present in
// the arena yet are kept in the list; their nodes can arrive later.
func (t *BookmarkTree) ReplaceChildren(folderID string, children []string) {
	if IsFavoritesRootID(folderID) {
		t.SetFavorites(folderID, children)
		return
	}
	folder := t.Nodes[folderID]
	if folder == nil {
		return
	}
	for _, old := range folder.Children {
		if child := t.Nodes[old]; child != nil && child.ParentID == folderID && !containsID(children, old) {
			child.ParentID = ""
		}
	}
	folder.Children = append([]string(nil), children...)
	for _, id := range children {
		if child := t.Nodes[id]; child != nil {
			child.ParentID = folderID
		}
	}
}

// AddFavorite appends id to the membership list of a favorites root if it
// is not already a member. The member's real parent is untouched.
func (t *BookmarkTree) AddFavorite(rootID, id string) {
	root := t.Nodes[rootID]
	if root == nil || !IsFavoritesRootID(rootID) || IsRootID(id) {
		return
	}
	if !containsID(root.Children, id) {
		root.Children = append(root.Children, id)
	}
}

// RemoveFavorite drops id from one favorites list.
func (t *BookmarkTree) RemoveFavorite(rootID, id string) {
	if root := t.Nodes[rootID]; root != nil && IsFavoritesRootID(rootID) {
		root.Children = removeID(root.Children, id)
	}
}

// SetFavorites replaces the membership list of a favorites root wholesale.
func (t *BookmarkTree) SetFavorites(rootID string, ids []string) {
	root := t.Nodes[rootID]
	if root == nil || !IsFavoritesRootID(rootID) {
		return
	}
	root.Children = append([]string(nil), ids...)
}

// Favorites returns the ordered membership of one favorites root.
func (t *BookmarkTree) Favorites(rootID string) []string {
	if root := t.Nodes[rootID]; root != nil {
		return root.Children
	}
	return nil
}

// MarkPendingDeletion tombstones a node: it is detached from its parent,
// dropped from every favorites list, and flagged for deferred physical
// removal.
func (t *BookmarkTree) MarkPendingDeletion(id string) {
	node := t.Nodes[id]
	if node == nil || IsRootID(id) {
		return
	}
	t.Detach(id)
	for _, rootID := range FavoritesRootIDs {
		t.RemoveFavorite(rootID, id)
	}
	node.PendingDeletion = true
	node.Children = nil
}

// Purge physically removes a node from the arena. Meant for tombstones whose
// deletion the server has acknowledged.
func (t *BookmarkTree) Purge(id string) {
	if IsRootID(id) {
		return
	}
	t.Detach(id)
	for _, rootID := range FavoritesRootIDs {
		t.RemoveFavorite(rootID, id)
	}
	delete(t.Nodes, id)
}

// Orphans returns the ids of non-root nodes without a parent, excluding
// nodes pending deletion.
func (t *BookmarkTree) Orphans() []string {
	var ids []string
	for id, n := range t.Nodes {
		if !IsRootID(id) && n.ParentID == "" && !n.PendingDeletion {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy of the tree.
func (t *BookmarkTree) Clone() *BookmarkTree {
	c := &BookmarkTree{Nodes: make(map[string]*BookmarkNode, len(t.Nodes))}
	for id, n := range t.Nodes {
		c.Nodes[id] = n.Clone()
	}
	return c
}

// BookmarkPayload is the decrypted wire payload of one bookmarks record.
// Folders carry their ordered children; pages carry a URL.
type BookmarkPayload struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url,omitempty"`
	IsFolder bool     `json:"is_folder,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
	Children []string `json:"children,omitempty"`
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
