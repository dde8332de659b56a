package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

const archiveTimeout = 10 * time.Second

// ArchiveReader is the read half of a sink.
type ArchiveReader interface {
	Enumerate(ctx context.Context) (crawler.ArchiveIndex, error)
	Read(ctx context.Context, version, page int, number string) (crawler.PostRecord, error)
}

// ArchiveHandler exposes read-only archive endpoints.
type ArchiveHandler struct {
	archive ArchiveReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewArchiveHandler wires the reader and logger.
func NewArchiveHandler(archive ArchiveReader, logger *zap.Logger) *ArchiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveHandler{
		archive: archive,
		timeout: archiveTimeout,
		logger:  logger,
	}
}

// Index handles GET /archive[?version=]. It returns {"posts": n, "index": {...}}
// on success, 400 for a malformed version filter, or 500 if enumeration fails.
func (h *ArchiveHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var filter int
	if raw := strings.TrimSpace(r.URL.Query().Get("version")); raw != "" {
		v, err := parsePositive("version", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = v
	}

	idx, err := h.archive.Enumerate(ctx)
	if err != nil {
		h.logger.Error("enumerate archive failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enumerate archive")
		return
	}
	if filter != 0 {
		filtered := crawler.ArchiveIndex{}
		if pages, ok := idx[filter]; ok {
			filtered[filter] = pages
		}
		idx = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": idx.Count(),
		"index": idx,
	})
}

// Post handles GET /archive/{version}/{page}/{number}. It returns
// {"post": {...}} on success, 400 for malformed keys, 404 when the post is
// missing, or 500 otherwise.
func (h *ArchiveHandler) Post(w http.ResponseWriter, r *http.Request) {
	version, err := parsePositive("version", chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := parsePositive("page", chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	number := chi.URLParam(r, "number")
	if err := crawler.ValidatePostKey(version, page, number); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	record, err := h.archive.Read(ctx, version, page, number)
	if err != nil {
		if errors.Is(err, crawler.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.logger.Error("read post failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": record})
}

func parsePositive(name, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}
