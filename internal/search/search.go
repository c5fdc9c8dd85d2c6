package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType string // empty = all item types
	Limit      int
	// Allow, when set, drops hits the caller may not see.
	Allow func(id string) bool
}

// Response is the envelope returned by Service.Search.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push items into a search index.
type Indexer interface {
	IndexItems(items []ItemRecord) error
	DeleteItems(ids []string) error
}

// Index is a backend Service can both query and keep current.
type Index interface {
	Searcher
	Indexer
}

// ItemRecord is the data we index for a tree item.
type ItemRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}
