package crawler

import (
	"net/http"
	"time"
)

// AuthorType classifies a poster by account tier.
type AuthorType string

// Author tiers derived from the username markup.
const (
	AuthorBlue AuthorType = "blue"
	AuthorGold AuthorType = "gold"
	AuthorMod  AuthorType = "mod"
)

// UnknownClient is reported when the client icons are missing.
const UnknownClient = "Unknown"

// ThreadRequest is one thread queued for archiving.
type ThreadRequest struct {
	Version  int    `json:"version"`
	URL      string `json:"url"`
	ThreadID int64  `json:"thread_id"`
}

// ClientInfo is the operating system, browser and country advertised next to a post.
type ClientInfo struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Country string `json:"country,omitempty"`
}

// Author identifies who wrote a post.
type Author struct {
	Name string     `json:"name"`
	Info ClientInfo `json:"info"`
	Type AuthorType `json:"type"`
}

// PostRecord is the unit handed to a Sink.
type PostRecord struct {
	Thread           int64          `json:"thread"`
	Page             int            `json:"page"`
	Author           Author         `json:"author"`
	Date             int64          `json:"date"`
	Number           string         `json:"number"`
	ID               int64          `json:"id"`
	Content          string         `json:"content"`
	SanitizedContent string         `json:"sanitized_content"`
	Ratings          map[string]int `json:"ratings"`
}

// ArchiveIndex maps version -> page -> post numbers.
type ArchiveIndex map[int]map[int][]string

// Add records a post number under version and page.
func (idx ArchiveIndex) Add(version, page int, number string) {
	pages, ok := idx[version]
	if !ok {
		pages = make(map[int][]string)
		idx[version] = pages
	}
	pages[page] = append(pages[page], number)
}

// Sort orders every page's post numbers numerically.
func (idx ArchiveIndex) Sort() {
	for _, pages := range idx {
		for page := range pages {
			SortPostNumbers(pages[page])
		}
	}
}

// Count returns the number of posts in the index.
func (idx ArchiveIndex) Count() int {
	total := 0
	for _, pages := range idx {
		for _, numbers := range pages {
			total += len(numbers)
		}
	}
	return total
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Summary aggregates the outcome of an archive run.
type Summary struct {
	RunID      string `json:"run_id"`
	Threads    int    `json:"threads"`
	Pages      int    `json:"pages"`
	Posts      int    `json:"posts"`
	Skipped    int    `json:"skipped"`
	Challenges int    `json:"challenges"`
}
