package crawler

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	threadDirPrefix = "thread"
	pageDirPrefix   = "page"
	postFilePrefix  = "post"
	postFileExt     = ".json"
)

// PostObjectPath returns the slash-separated location of a post:
// thread<version>/page<page>/post<number>.json.
func PostObjectPath(version, page int, number string) string {
	return path.Join(ThreadDirName(version), PageDirName(page), postFilePrefix+number+postFileExt)
}

// ThreadDirName returns the directory name for version.
func ThreadDirName(version int) string {
	return threadDirPrefix + strconv.Itoa(version)
}

// PageDirName returns the directory name for page.
func PageDirName(page int) string {
	return pageDirPrefix + strconv.Itoa(page)
}

// ParseThreadDirName returns the version encoded in a thread directory name.
func ParseThreadDirName(name string) (int, bool) {
	return parsePrefixedInt(name, threadDirPrefix)
}

// ParsePageDirName returns the page encoded in a page directory name.
func ParsePageDirName(name string) (int, bool) {
	return parsePrefixedInt(name, pageDirPrefix)
}

// ParsePostFileName returns the post number encoded in a post file name.
func ParsePostFileName(name string) (string, bool) {
	if !strings.HasPrefix(name, postFilePrefix) || !strings.HasSuffix(name, postFileExt) {
		return "", false
	}
	number := strings.TrimSuffix(strings.TrimPrefix(name, postFilePrefix), postFileExt)
	if number == "" {
		return "", false
	}
	return number, true
}

// ParsePostObjectPath splits a path produced by PostObjectPath.
func ParsePostObjectPath(p string) (version, page int, number string, err error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("post path %q: expected 3 segments", p)
	}
	var ok bool
	if version, ok = ParseThreadDirName(parts[0]); !ok {
		return 0, 0, "", fmt.Errorf("post path %q: bad thread segment", p)
	}
	if page, ok = ParsePageDirName(parts[1]); !ok {
		return 0, 0, "", fmt.Errorf("post path %q: bad page segment", p)
	}
	if number, ok = ParsePostFileName(parts[2]); !ok {
		return 0, 0, "", fmt.Errorf("post path %q: bad post segment", p)
	}
	return version, page, number, nil
}

func parsePrefixedInt(name, prefix string) (int, bool) {
	if len(name) <= len(prefix) || !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortPostNumbers orders numbers numerically, falling back to lexical order
// for values that are not integers.
func SortPostNumbers(numbers []string) {
	sort.SliceStable(numbers, func(i, j int) bool {
		a, aErr := strconv.Atoi(numbers[i])
		b, bErr := strconv.Atoi(numbers[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return numbers[i] < numbers[j]
		}
	})
}

// VersionIndex maps thread IDs to the version they were announced under.
// It is filled once by AnnounceThreads and only read afterwards.
type VersionIndex struct {
	mu       sync.RWMutex
	versions map[int64]int
}

// Announce replaces the mapping with the given threads.
func (v *VersionIndex) Announce(threads map[int]ThreadRequest) {
	versions := make(map[int64]int, len(threads))
	for version, req := range threads {
		versions[req.ThreadID] = version
	}
	v.mu.Lock()
	v.versions = versions
	v.mu.Unlock()
}

// Lookup returns the version announced for threadID.
func (v *VersionIndex) Lookup(threadID int64) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	version, ok := v.versions[threadID]
	if !ok {
		return 0, fmt.Errorf("%w: thread %d", ErrUnknownThread, threadID)
	}
	return version, nil
}

// ValidatePostKey rejects keys that cannot be stored safely.
func ValidatePostKey(version, page int, number string) error {
	switch {
	case version <= 0:
		return fmt.Errorf("%w: version %d is not positive", ErrValidation, version)
	case page <= 0:
		return fmt.Errorf("%w: page %d is not positive", ErrValidation, page)
	case number == "":
		return fmt.Errorf("%w: post number is empty", ErrValidation)
	case strings.ContainsAny(number, `/\`) || strings.Contains(number, ".."):
		return fmt.Errorf("%w: post number %q is not a valid key", ErrValidation, number)
	}
	return nil
}
