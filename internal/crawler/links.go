package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var threadLinkPattern = regexp.MustCompile(`(?i)^https?://[^/\s?#]+/(?:[^?\s#]*/)?showthread\.php\?(?:[^#\s]*&)?t=(\d+)`)

// ParseThreadID extracts the numeric thread identifier from a thread link.
func ParseThreadID(rawURL string) (int64, error) {
	m := threadLinkPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return 0, fmt.Errorf("%w: %s is not a valid thread link", ErrValidation, rawURL)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s has no positive thread id", ErrValidation, rawURL)
	}
	return id, nil
}

// NewThreadRequest validates rawURL and binds it to version.
func NewThreadRequest(version int, rawURL string) (ThreadRequest, error) {
	if version <= 0 {
		return ThreadRequest{}, fmt.Errorf("%w: version must be a positive integer, got %d", ErrValidation, version)
	}
	id, err := ParseThreadID(rawURL)
	if err != nil {
		return ThreadRequest{}, err
	}
	return ThreadRequest{
		Version:  version,
		URL:      strings.TrimSpace(rawURL),
		ThreadID: id,
	}, nil
}

// ThreadURL returns the first page of a thread under baseURL.
func ThreadURL(baseURL string, threadID int64) string {
	q := url.Values{}
	q.Set("t", strconv.FormatInt(threadID, 10))
	return strings.TrimRight(baseURL, "/") + "/showthread.php?" + q.Encode()
}

// PageURL returns page of a thread under baseURL.
func PageURL(baseURL string, threadID int64, page int) string {
	return ThreadURL(baseURL, threadID) + "&page=" + strconv.Itoa(page)
}
