package store

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"docuflex/internal/events"
	"docuflex/internal/logging"
	"docuflex/internal/metrics"
)

// Tree holds the current snapshot of the file tree. Readers load the root
// without locking; writers are serialized and publish a new root that
// shares every subtree off the mutated path with the previous one.
type Tree struct {
	mu     sync.Mutex
	root   atomic.Pointer[Item]
	events *events.Broadcaster
	logger *zap.Logger
}

type TreeOption func(*Tree)

func WithEvents(b *events.Broadcaster) TreeOption {
	return func(t *Tree) { t.events = b }
}

func WithLogger(logger *zap.Logger) TreeOption {
	return func(t *Tree) { t.logger = logger }
}

func NewTree(root *Item, opts ...TreeOption) *Tree {
	t := &Tree{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrNop(t.logger)
	t.root.Store(root)
	metrics.SetTreeSize(Count(root))
	return t
}

// Snapshot returns the current root. The returned tree is immutable.
func (t *Tree) Snapshot() *Item {
	return t.root.Load()
}

func (t *Tree) Find(id string) (*Item, bool) {
	return Find(t.Snapshot(), id)
}

func (t *Tree) FindParent(id string) (*Item, bool) {
	return FindParent(t.Snapshot(), id)
}

// Path returns the chain of items from the root to id, both included.
func (t *Tree) Path(id string) ([]*Item, bool) {
	path := pathTo(t.Snapshot(), id, nil)
	return path, path != nil
}

// Insert prepends item to the children of the folder parentID. The tree
// takes ownership of item.
func (t *Tree) Insert(parentID string, item *Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := pathTo(t.root.Load(), parentID, nil)
	if path == nil {
		return t.fail("insert", parentID, ErrNotFound)
	}
	parent := path[len(path)-1]
	if !parent.IsFolder() {
		return t.fail("insert", parentID, ErrNotFolder)
	}

	next := parent.clone()
	next.Children = make([]*Item, 0, len(parent.Children)+1)
	next.Children = append(next.Children, item)
	next.Children = append(next.Children, parent.Children...)

	t.publish(replaceAt(path, next), events.Event{Type: events.EventCreate, ItemID: item.ID, ParentID: parentID}, "insert")
	return nil
}

// Update merges patch into the item with the given id.
func (t *Tree) Update(id string, patch ItemPatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := pathTo(t.root.Load(), id, nil)
	if path == nil {
		return t.fail("update", id, ErrNotFound)
	}
	if patch.IsEmpty() {
		return nil
	}

	next := path[len(path)-1].clone()
	patch.apply(next)

	parentID := ""
	if len(path) > 1 {
		parentID = path[len(path)-2].ID
	}
	t.publish(replaceAt(path, next), events.Event{Type: events.EventUpdate, ItemID: id, ParentID: parentID}, "update")
	return nil
}

// Delete cuts the item out of its parent and returns the removed subtree.
func (t *Tree) Delete(id string) (*Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := pathTo(t.root.Load(), id, nil)
	if path == nil {
		return nil, t.fail("delete", id, ErrNotFound)
	}
	if len(path) == 1 {
		return nil, t.fail("delete", id, ErrRoot)
	}

	removed := path[len(path)-1]
	parent := path[len(path)-2]
	next := parent.clone()
	next.Children = make([]*Item, 0, len(parent.Children))
	for _, child := range parent.Children {
		if child != removed {
			next.Children = append(next.Children, child)
		}
	}

	ids := []string{removed.ID}
	for _, d := range Flatten(removed) {
		ids = append(ids, d.ID)
	}
	t.publish(replaceAt(path[:len(path)-1], next), events.Event{
		Type:     events.EventDelete,
		ItemID:   id,
		ParentID: parent.ID,
		Removed:  ids,
	}, "delete")
	return removed, nil
}

func (t *Tree) publish(root *Item, event events.Event, op string) {
	t.root.Store(root)
	size := Count(root)
	metrics.RecordTreeMutation(op, true)
	metrics.SetTreeSize(size)
	t.logger.Debug("tree mutated",
		zap.String("operation", op),
		logging.ItemID(event.ItemID),
		zap.Int("size", size),
	)
	if t.events != nil {
		t.events.Publish(event)
	}
}

func (t *Tree) fail(op, id string, err error) error {
	metrics.RecordTreeMutation(op, false)
	t.logger.Debug("tree mutation skipped", zap.String("operation", op), logging.ItemID(id), zap.Error(err))
	return err
}

// replaceAt returns a new root in which the last node of path is replaced
// by leaf. Every ancestor on path is copied; all other nodes are shared.
func replaceAt(path []*Item, leaf *Item) *Item {
	old, next := path[len(path)-1], leaf
	for i := len(path) - 2; i >= 0; i-- {
		parent := path[i].clone()
		parent.Children = make([]*Item, len(path[i].Children))
		copy(parent.Children, path[i].Children)
		for j, child := range parent.Children {
			if child == old {
				parent.Children[j] = next
				break
			}
		}
		old, next = path[i], parent
	}
	return next
}
