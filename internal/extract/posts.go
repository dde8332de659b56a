package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

const (
	counterLabelLen = len("Post #")
	goldColor       = "#A06000"
	modColor        = "#00aa00"
	flagMarker      = "flags"
)

var (
	postIDPattern  = regexp.MustCompile(`[?&]p=(\d+)`)
	browserPattern = regexp.MustCompile(`/fp/browser/(.+?)\.png`)

	errMissing = errors.New("element not found")
)

// Posts extracts every post container in document order.
func (d *Document) Posts(opts Options) ([]crawler.PostRecord, []error) {
	page := d.PageNumber(opts.Page)
	var (
		records []crawler.PostRecord
		errs    []error
	)
	d.doc.Find(".postcontainer").Each(func(i int, sel *goquery.Selection) {
		record, err := extractPost(sel, i, page, opts)
		if err != nil {
			errs = append(errs, err)
			return
		}
		records = append(records, record)
	})
	return records, errs
}

func extractPost(sel *goquery.Selection, index, page int, opts Options) (crawler.PostRecord, error) {
	fail := func(field string, err error) error {
		return &crawler.ExtractionError{Page: page, Index: index, Field: field, Err: err}
	}
	record := crawler.PostRecord{
		Thread: opts.ThreadID,
		Page:   page,
	}

	dateText := strings.TrimSpace(sel.Find(".date").First().Text())
	if dateText == "" {
		return record, fail("date", errMissing)
	}
	date, err := ResolveDate(dateText, opts.Now)
	if err != nil {
		return record, fail("date", err)
	}
	record.Date = date.Unix()

	counter := sel.Find(".postcounter").First()
	if counter.Length() == 0 {
		return record, fail("number", errMissing)
	}
	if record.Number, err = postNumber(counter.Text()); err != nil {
		return record, fail("number", err)
	}
	if record.ID, err = postID(counter); err != nil {
		return record, fail("id", err)
	}

	if record.Author, err = author(sel); err != nil {
		return record, fail("author", err)
	}

	body := sel.Find(".postcontent").First()
	if body.Length() == 0 {
		return record, fail("content", errMissing)
	}
	html, err := body.Html()
	if err != nil {
		return record, fail("content", err)
	}
	record.Content = strings.TrimSpace(html)
	stripped := body.Clone()
	stripped.Find(".quote").Remove()
	record.SanitizedContent = strings.TrimSpace(stripped.Text())

	if record.Ratings, err = ratings(sel); err != nil {
		return record, fail("ratings", err)
	}
	return record, nil
}

func postNumber(text string) (string, error) {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= counterLabelLen {
		return "", fmt.Errorf("counter text %q has no number", string(runes))
	}
	return strings.TrimSpace(string(runes[counterLabelLen:])), nil
}

func postID(counter *goquery.Selection) (int64, error) {
	href, ok := counter.Attr("href")
	if !ok {
		return 0, fmt.Errorf("permalink: %w", errMissing)
	}
	m := postIDPattern.FindStringSubmatch(href)
	if m == nil {
		return 0, fmt.Errorf("permalink %q has no post id", href)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse post id: %w", err)
	}
	return id, nil
}

func author(sel *goquery.Selection) (crawler.Author, error) {
	username := sel.Find(".username").First()
	if username.Length() == 0 {
		return crawler.Author{}, errMissing
	}
	a := crawler.Author{
		Name: strings.TrimSpace(username.Text()),
		Type: crawler.AuthorBlue,
		Info: clientInfo(sel),
	}
	if color, ok := username.Find("font").First().Attr("color"); ok && strings.EqualFold(color, goldColor) {
		a.Type = crawler.AuthorGold
	}
	// Checked last so a moderator marker overrides gold.
	if style, ok := username.Find("span").First().Attr("style"); ok && strings.Contains(strings.ToLower(style), modColor) {
		a.Type = crawler.AuthorMod
	}
	return a, nil
}

func clientInfo(sel *goquery.Selection) crawler.ClientInfo {
	info := crawler.ClientInfo{OS: crawler.UnknownClient, Browser: crawler.UnknownClient}
	icons := sel.Find(".postlinking img")
	if alt, ok := icons.Eq(0).Attr("alt"); ok && alt != "" {
		info.OS = alt
	}
	if src, ok := icons.Eq(1).Attr("src"); ok && !strings.Contains(src, flagMarker) {
		if m := browserPattern.FindStringSubmatch(src); m != nil {
			info.Browser = Capitalize(m[1])
		}
	}
	if src, ok := icons.Eq(2).Attr("src"); ok && strings.Contains(src, flagMarker) {
		info.Country = icons.Eq(2).AttrOr("alt", "")
	}
	return info
}

func ratings(sel *goquery.Selection) (map[string]int, error) {
	out := make(map[string]int)
	var err error
	sel.Find(".rating_results span").EachWithBreak(func(_ int, r *goquery.Selection) bool {
		alt, ok := r.Find("img").First().Attr("alt")
		if !ok {
			err = fmt.Errorf("rating icon: %w", errMissing)
			return false
		}
		count, convErr := strconv.Atoi(strings.TrimSpace(r.Find("strong").First().Text()))
		if convErr != nil {
			err = fmt.Errorf("rating %q count: %w", alt, convErr)
			return false
		}
		out[strings.ToLower(strings.ReplaceAll(alt, " ", "_"))] = count
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
