package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPost ResultType = "post"
	ResultItem ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	PageID  string     `json:"pageId"`
	BoardID string     `json:"boardId,omitempty"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterPageID string
	Limit        int
	Offset       int
	// PublicOnly hides draft posts; set for unauthenticated visitors.
	PublicOnly bool
}

// Response is the envelope returned by the search endpoint. Backend
// names which engine answered ("meilisearch" or "pgfts").
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

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	IndexItem(i ItemRecord) error
	DeletePost(id string) error
	DeleteItem(id string) error
}

// PostRecord is the data we index for a changelog post.
type PostRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	PageID  string `json:"pageId"`
	Status  string `json:"status"`
}

// ItemRecord is the data we index for a roadmap item.
type ItemRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PageID      string `json:"pageId"`
	BoardID     string `json:"boardId"`
	Category    string `json:"category"`
}
