// Package engine drives an archive run: page discovery, challenge handling,
// bounded page fetching, extraction and hand-off to the sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/forum-archiver/internal/challenge"
	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/extract"
	"github.com/JakeFAU/forum-archiver/internal/metrics"
)

const (
	defaultMaxChallengeAttempts = 3
	defaultMaxPages             = 10000
)

// DefaultChallengeDomain is the domain whose length the interstitial adds to
// its expression.
const DefaultChallengeDomain = "facepunch.com"

// Config controls Engine behavior.
type Config struct {
	// BaseURL overrides the scheme and host taken from each thread URL.
	BaseURL string
	// ChallengeDomain is added to challenge answers. Defaults to DefaultChallengeDomain.
	ChallengeDomain string
	// ChallengeDomainFromHost uses the base URL's host when ChallengeDomain is empty.
	ChallengeDomainFromHost bool
	Concurrency             int
	FailFast                bool
	MaxChallengeAttempts    int
	// MaxPages rejects threads whose first page reports more pages.
	MaxPages int
	// SinkName labels post metrics.
	SinkName string
	// Topic enables post notifications when set.
	Topic string
}

// Engine archives threads into a sink.
type Engine struct {
	cfg       Config
	fetcher   crawler.Fetcher
	sink      crawler.Sink
	publisher crawler.Publisher
	clock     crawler.Clock
	retry     crawler.RetryPolicy
	ids       crawler.IDGenerator
	logger    *zap.Logger

	mu         sync.RWMutex
	runID      string
	threads    atomic.Int64
	pages      atomic.Int64
	posts      atomic.Int64
	skipped    atomic.Int64
	challenges atomic.Int64
}

// New constructs an Engine. publisher and retry may be nil.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	sink crawler.Sink,
	publisher crawler.Publisher,
	clock crawler.Clock,
	retry crawler.RetryPolicy,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxChallengeAttempts <= 0 {
		cfg.MaxChallengeAttempts = defaultMaxChallengeAttempts
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "unknown"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		sink:      sink,
		publisher: publisher,
		clock:     clock,
		retry:     retry,
		ids:       ids,
		logger:    logger,
	}
}

// Stats returns the live counters of the current or last run.
func (e *Engine) Stats() crawler.Summary {
	e.mu.RLock()
	runID := e.runID
	e.mu.RUnlock()
	return crawler.Summary{
		RunID:      runID,
		Threads:    int(e.threads.Load()),
		Pages:      int(e.pages.Load()),
		Posts:      int(e.posts.Load()),
		Skipped:    int(e.skipped.Load()),
		Challenges: int(e.challenges.Load()),
	}
}

// Run announces threads to the sink and archives them one after another.
// The sink must already be initialized.
func (e *Engine) Run(ctx context.Context, threads map[int]crawler.ThreadRequest) (crawler.Summary, error) {
	runID, err := e.ids.NewID()
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	e.reset(runID)
	logger := e.logger.With(zap.String("run_id", runID))

	if err := e.sink.AnnounceThreads(ctx, threads); err != nil {
		metrics.ObserveRun(metrics.OutcomeFailed)
		return e.Stats(), fmt.Errorf("announce threads: %w", err)
	}

	versions := make([]int, 0, len(threads))
	for v := range threads {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, version := range versions {
		req := threads[version]
		if err := e.archiveThread(ctx, logger, version, req); err != nil {
			metrics.ObserveRun(metrics.OutcomeFailed)
			return e.Stats(), fmt.Errorf("archive thread %d (version %d): %w", req.ThreadID, version, err)
		}
		e.threads.Add(1)
	}

	summary := e.Stats()
	metrics.ObserveRun(metrics.OutcomeSuccess)
	logger.Info("archive run finished",
		zap.Int("threads", summary.Threads),
		zap.Int("pages", summary.Pages),
		zap.Int("posts", summary.Posts),
		zap.Int("skipped", summary.Skipped),
		zap.Int("challenges", summary.Challenges),
	)
	return summary, nil
}

func (e *Engine) reset(runID string) {
	e.mu.Lock()
	e.runID = runID
	e.mu.Unlock()
	e.threads.Store(0)
	e.pages.Store(0)
	e.posts.Store(0)
	e.skipped.Store(0)
	e.challenges.Store(0)
}

type pageResult struct {
	page    int
	stored  int
	skipped []error
	err     error
}

func (e *Engine) archiveThread(ctx context.Context, logger *zap.Logger, version int, req crawler.ThreadRequest) error {
	base, err := e.baseURL(req)
	if err != nil {
		return err
	}
	logger = logger.With(zap.Int("version", version), zap.Int64("thread_id", req.ThreadID))

	body, err := e.fetchPage(ctx, base, crawler.ThreadURL(base, req.ThreadID))
	if err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}
	maxPage, err := extract.PageCount(body)
	if err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}
	if maxPage > e.cfg.MaxPages {
		return fmt.Errorf("%w: thread reports %d pages, limit is %d", crawler.ErrExtraction, maxPage, e.cfg.MaxPages)
	}
	logger.Info("archiving thread", zap.Int("pages", maxPage))

	var (
		mu     sync.Mutex
		stored int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for page := 1; page <= maxPage; page++ {
		g.Go(func() error {
			res := e.archivePage(gctx, logger, base, req, page)
			mu.Lock()
			stored += res.stored
			mu.Unlock()
			for _, skipErr := range res.skipped {
				logger.Warn("post skipped", zap.Int("page", res.page), zap.Error(skipErr))
			}
			return res.err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("thread archived", zap.Int("posts", stored))
	return nil
}

func (e *Engine) archivePage(
	ctx context.Context,
	logger *zap.Logger,
	base string,
	req crawler.ThreadRequest,
	page int,
) pageResult {
	res := pageResult{page: page}
	body, err := e.fetchPage(ctx, base, crawler.PageURL(base, req.ThreadID, page))
	if err != nil {
		res.err = fmt.Errorf("page %d: %w", page, err)
		return res
	}
	e.pages.Add(1)

	records, errs, err := extract.Posts(body, extract.Options{
		ThreadID: req.ThreadID,
		Page:     page,
		Now:      e.clock.Now(),
	})
	if err != nil {
		res.err = fmt.Errorf("page %d: %w", page, err)
		return res
	}
	if len(errs) > 0 {
		if e.cfg.FailFast {
			res.err = fmt.Errorf("page %d: %w", page, errs[0])
			return res
		}
		res.skipped = errs
		e.skipped.Add(int64(len(errs)))
		for range errs {
			metrics.ObservePost(e.cfg.SinkName, metrics.OutcomeSkipped)
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		if err := e.sink.Post(ctx, record); err != nil {
			res.err = fmt.Errorf("page %d: store post %s: %w", page, record.Number, err)
			return res
		}
		res.stored++
		e.posts.Add(1)
		metrics.ObservePost(e.cfg.SinkName, metrics.OutcomeStored)
		e.publish(ctx, logger, req, record)
	}
	return res
}

// fetchPage returns the body of pageURL, solving interstitials on the way.
func (e *Engine) fetchPage(ctx context.Context, base, pageURL string) ([]byte, error) {
	request := crawler.FetchRequest{URL: pageURL}
	for attempts := 0; ; {
		resp, err := e.fetchWithRetry(ctx, request)
		if err != nil {
			return nil, err
		}
		if !challenge.Detect(resp.Body) {
			return resp.Body, nil
		}
		if attempts >= e.cfg.MaxChallengeAttempts {
			metrics.ObserveChallenge(metrics.OutcomeFailed)
			return nil, fmt.Errorf("%w: %s still challenged after %d attempts", crawler.ErrChallenge, pageURL, attempts)
		}
		solution, err := challenge.Solve(resp.Body, e.challengeDomain(base))
		if err != nil {
			metrics.ObserveChallenge(metrics.OutcomeFailed)
			return nil, fmt.Errorf("solve challenge for %s: %w", pageURL, err)
		}
		attempts++
		e.challenges.Add(1)
		metrics.ObserveChallenge(metrics.OutcomeSolved)
		e.logger.Debug("challenge solved", zap.String("url", pageURL), zap.Int("attempt", attempts))

		request = crawler.FetchRequest{
			URL:     challenge.VerificationURL(base, solution),
			Headers: http.Header{"Referer": []string{pageURL}},
		}
	}
}

func (e *Engine) fetchWithRetry(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := e.fetcher.Fetch(ctx, request)
		if err == nil && !successful(resp.StatusCode) && !challenge.Detect(resp.Body) {
			err = &crawler.TransportError{URL: request.URL, StatusCode: resp.StatusCode}
		}
		if err == nil {
			return resp, nil
		}
		if e.retry == nil || !e.retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, err
		}
		metrics.ObserveRetry(request.URL)
		delay := e.retry.Backoff(attempt)
		e.logger.Debug("retrying fetch", zap.String("url", request.URL), zap.Duration("backoff", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.FetchResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Notification announces one stored post.
type Notification struct {
	RunID    string `json:"run_id"`
	Version  int    `json:"version"`
	Thread   int64  `json:"thread"`
	Page     int    `json:"page"`
	Number   string `json:"number"`
	ID       int64  `json:"id"`
	StoredAt string `json:"stored_at"`
}

// Attributes lets subscribers filter by thread without decoding the body.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"run_id":  n.RunID,
		"version": strconv.Itoa(n.Version),
		"thread":  strconv.FormatInt(n.Thread, 10),
	}
}

func (e *Engine) publish(ctx context.Context, logger *zap.Logger, req crawler.ThreadRequest, record crawler.PostRecord) {
	if e.cfg.Topic == "" || e.publisher == nil {
		return
	}
	e.mu.RLock()
	runID := e.runID
	e.mu.RUnlock()
	payload := Notification{
		RunID:    runID,
		Version:  req.Version,
		Thread:   record.Thread,
		Page:     record.Page,
		Number:   record.Number,
		ID:       record.ID,
		StoredAt: e.clock.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.Topic, payload); err != nil {
		metrics.ObservePublish(metrics.OutcomeFailed)
		logger.Warn("publish post notification failed", zap.String("number", record.Number), zap.Error(err))
		return
	}
	metrics.ObservePublish(metrics.OutcomeSuccess)
}

func (e *Engine) baseURL(req crawler.ThreadRequest) (string, error) {
	if e.cfg.BaseURL != "" {
		return e.cfg.BaseURL, nil
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: cannot derive base url from %q", crawler.ErrValidation, req.URL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (e *Engine) challengeDomain(base string) string {
	if e.cfg.ChallengeDomain != "" {
		return e.cfg.ChallengeDomain
	}
	if e.cfg.ChallengeDomainFromHost {
		if u, err := url.Parse(base); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return DefaultChallengeDomain
}

func successful(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// IsFatal reports whether err should stop a monitor loop rather than wait for
// the next scheduled run.
func IsFatal(err error) bool {
	return errors.Is(err, crawler.ErrConfiguration) || errors.Is(err, crawler.ErrValidation)
}
