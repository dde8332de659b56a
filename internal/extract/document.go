// Package extract turns thread page HTML into post records using goquery.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

var pagePattern = regexp.MustCompile(`Page (\d+) of (\d+)`)

// Options carries the context a page was fetched in.
type Options struct {
	ThreadID int64
	// Page is the page number that was requested.
	Page int
	// Now anchors relative dates such as "2 weeks Ago".
	Now time.Time
}

// Document is a parsed thread page.
type Document struct {
	doc *goquery.Document
}

// Parse parses a thread page body.
func Parse(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc}, nil
}

// PageCount parses body and returns its total page count.
func PageCount(body []byte) (int, error) {
	d, err := Parse(body)
	if err != nil {
		return 0, err
	}
	return d.PageCount(), nil
}

// Posts parses body and extracts every post container. Per-post failures are
// returned in the second slice; the third value reports an unparsable body.
func Posts(body []byte, opts Options) ([]crawler.PostRecord, []error, error) {
	d, err := Parse(body)
	if err != nil {
		return nil, nil, err
	}
	records, errs := d.Posts(opts)
	return records, errs, nil
}

// PageCount reads "Page X of Y" from the first pagination control and
// returns Y. Pages without the control are single-page threads.
func (d *Document) PageCount() int {
	_, total, ok := d.pagination()
	if !ok || total < 1 {
		return 1
	}
	return total
}

// PageNumber returns the page number the document reports for itself when
// the thread has several pages, otherwise requested.
func (d *Document) PageNumber(requested int) int {
	current, total, ok := d.pagination()
	if !ok || total <= 1 {
		if requested < 1 {
			return 1
		}
		return requested
	}
	if current < 1 {
		return requested
	}
	return current
}

func (d *Document) pagination() (current, total int, ok bool) {
	text := d.doc.Find(".popupctrl").First().Text()
	if text == "" {
		return 0, 0, false
	}
	m := pagePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	current, errCurrent := strconv.Atoi(m[1])
	total, errTotal := strconv.Atoi(m[2])
	if errCurrent != nil || errTotal != nil {
		return 0, 0, false
	}
	return current, total, true
}
