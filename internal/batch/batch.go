// Package batch parses thread batch files: one "<version> <url>" pair per line.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

// Parse reads every non-empty line of r. Any malformed line rejects the
// whole batch so no thread is fetched from a partially valid file.
func Parse(r io.Reader) (map[int]crawler.ThreadRequest, error) {
	threads := make(map[int]crawler.ThreadRequest)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d: expected \"<version> <url>\"", crawler.ErrConfiguration, lineNo)
		}
		version, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: version %q is not an integer", crawler.ErrConfiguration, lineNo, fields[0])
		}
		if _, dup := threads[version]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate version %d", crawler.ErrConfiguration, lineNo, version)
		}
		req, err := crawler.NewThreadRequest(version, fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		threads[version] = req
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read batch: %v", crawler.ErrConfiguration, err)
	}
	if len(threads) == 0 {
		return nil, fmt.Errorf("%w: batch contains no threads", crawler.ErrConfiguration)
	}
	return threads, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) (map[int]crawler.ThreadRequest, error) {
	// #nosec G304 -- the batch path is supplied by the operator.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: input file %s does not exist", crawler.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: open input file: %v", crawler.ErrConfiguration, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	return Parse(f)
}

// Single wraps one thread URL as a batch of one.
func Single(version int, rawURL string) (map[int]crawler.ThreadRequest, error) {
	req, err := crawler.NewThreadRequest(version, rawURL)
	if err != nil {
		return nil, err
	}
	return map[int]crawler.ThreadRequest{version: req}, nil
}
