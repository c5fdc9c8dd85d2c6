package search

import (
	"context"

	"go.uber.org/zap"

	"docuflex/internal/events"
	"docuflex/internal/logging"
	"docuflex/internal/store"
)

const (
	BackendMeili  = "meilisearch"
	BackendMemory = "memory"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index. The memory index is always kept current.
type Service struct {
	meili  Index
	memory *Memory
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, memory *Memory, logger *zap.Logger) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	s := &Service{memory: memory, logger: logging.OrNop(logger).Named("search")}
	if meili != nil {
		s.meili = meili
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to memory.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMeili}
		}
		s.logger.Warn("meilisearch error, falling back to memory index", zap.Error(err))
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.logger.Error("memory search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text, Backend: BackendMemory}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMemory}
}

// Backend names the index Search would use right now.
func (s *Service) Backend() string {
	if s.meili != nil && s.meili.Healthy() {
		return BackendMeili
	}
	return BackendMemory
}

// IndexItem indexes a tree item. Folders are indexed by name only.
func (s *Service) IndexItem(item *store.Item) {
	if item == nil || item.ID == store.RootID {
		return
	}
	rec := Record(item)
	if err := s.memory.IndexItems([]ItemRecord{rec}); err != nil {
		s.logger.Error("memory index item", logging.ItemID(rec.ID), zap.Error(err))
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexItems([]ItemRecord{rec}); err != nil {
			s.logger.Warn("index item", logging.ItemID(rec.ID), zap.Error(err))
		}
	}()
}

// DeleteItems removes ids from both indexes (fire-and-forget to Meilisearch).
func (s *Service) DeleteItems(ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.memory.DeleteItems(ids); err != nil {
		s.logger.Error("memory delete items", zap.Strings("ids", ids), zap.Error(err))
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteItems(ids); err != nil {
			s.logger.Warn("delete items", zap.Strings("ids", ids), zap.Error(err))
		}
	}()
}

// ReindexAll pushes every item under root into both indexes.
func (s *Service) ReindexAll(root *store.Item) {
	items := store.Flatten(root)
	records := make([]ItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, Record(item))
	}
	if err := s.memory.IndexItems(records); err != nil {
		s.logger.Error("memory reindex", zap.Error(err))
	}
	s.logger.Info("reindexed items", zap.Int("count", len(records)))

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexItems(records); err != nil {
		s.logger.Warn("reindex meilisearch", zap.Error(err))
	}
}

// Apply brings the indexes in line with one tree event.
func (s *Service) Apply(tree *store.Tree, ev events.Event) {
	switch ev.Type {
	case events.EventCreate, events.EventUpdate:
		item, ok := tree.Find(ev.ItemID)
		if !ok {
			return
		}
		s.IndexItem(item)
	case events.EventDelete:
		s.DeleteItems(ev.Removed)
	}
}

// Resync reindexes every item under root and drops memory records for
// items that no longer exist.
func (s *Service) Resync(root *store.Item) {
	s.ReindexAll(root)
	keep := make(map[string]bool)
	for _, item := range store.Flatten(root) {
		keep[item.ID] = true
	}
	if err := s.memory.Prune(keep); err != nil {
		s.logger.Error("memory prune", zap.Error(err))
	}
}

// Follow applies tree events until ctx is done. Once the backlog drains
// after the bus reports missed deliveries, the indexes are resynced from
// the current snapshot. The returned channel is closed once the
// subscription has been released.
func (s *Service) Follow(ctx context.Context, tree *store.Tree, bus *events.Broadcaster) <-chan struct{} {
	ch := bus.Subscribe()
	seen := bus.Dropped()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.Apply(tree, ev)
				if n := bus.Dropped(); n != seen && len(ch) == 0 {
					s.logger.Warn("tree events dropped, resyncing index", zap.Uint64("dropped", n-seen))
					seen = n
					s.Resync(tree.Snapshot())
				}
			}
		}
	}()
	return done
}

// Record converts a tree item into its indexed form.
func Record(item *store.Item) ItemRecord {
	return ItemRecord{
		ID:      item.ID,
		Name:    item.Name,
		Type:    string(item.Type),
		Content: item.Content,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
