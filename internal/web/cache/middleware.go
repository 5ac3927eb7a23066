package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ResponseCacheConfig configures ResponseCache
type ResponseCacheConfig struct {
	Cache Cache

	// Prefix is the API base path; the segment after it names the resource type
	Prefix string

	// TTL of cached documents
	TTL time.Duration

	// Dependents lists the other types whose documents a write to typeName
	// can change. Nil means only the written type is invalidated.
	Dependents func(typeName string) []string

	Logger *zap.Logger
}

// cachedResponse is the stored form of a rendered document
type cachedResponse struct {
	ContentType string `json:"content_type"`
	ETag        string `json:"etag"`
	Body        []byte `json:"body"`
}

// ResponseCache caches successful GET responses per resource type. Every
// successful write to a type increments its generation counter and those of
// its dependents. Keys embed the generation read before the handler ran, so
// documents rendered before a write can never be served after it.
// Cache failures are logged and the request is served uncached.
func ResponseCache(config ResponseCacheConfig) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := &responseCache{config: config, logger: logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			typeName := resourceType(config.Prefix, r.URL.Path)
			switch {
			case typeName == "":
				next.ServeHTTP(w, r)
			case r.Method == http.MethodGet:
				rc.serveCached(w, r, next, typeName)
			case r.Method == http.MethodPost, r.Method == http.MethodPatch,
				r.Method == http.MethodPut, r.Method == http.MethodDelete:
				rc.serveWrite(w, r, next, typeName)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

type responseCache struct {
	config ResponseCacheConfig
	logger *zap.Logger
}

func (rc *responseCache) generation(ctx context.Context, typeName string) (int64, error) {
	data, err := rc.config.Cache.Get(ctx, generationKey(typeName))
	if IsCacheMiss(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func (rc *responseCache) serveCached(w http.ResponseWriter, r *http.Request, next http.Handler, typeName string) {
	ctx := r.Context()
	gen, err := rc.generation(ctx, typeName)
	if err != nil {
		rc.logger.Warn("cache generation lookup failed", zap.String("type", typeName), zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}
	key := responseKey(typeName, gen, r)

	if data, err := rc.config.Cache.Get(ctx, key); err == nil {
		var cached cachedResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			w.Header().Set("X-Cache", "HIT")
			writeCached(w, r, &cached)
			return
		}
		rc.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	} else if !IsCacheMiss(err) {
		rc.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
	next.ServeHTTP(rec, r)

	if rec.status != http.StatusOK {
		rec.flush(w)
		return
	}

	cached := &cachedResponse{
		ContentType: rec.header.Get("Content-Type"),
		ETag:        GenerateETag(rec.body.Bytes()),
		Body:        rec.body.Bytes(),
	}
	if data, err := json.Marshal(cached); err == nil {
		if err := rc.config.Cache.Set(ctx, key, data, rc.config.TTL); err != nil {
			rc.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	for k, v := range rec.header {
		w.Header()[k] = v
	}
	w.Header().Set("X-Cache", "MISS")
	writeCached(w, r, cached)
}

func (rc *responseCache) serveWrite(w http.ResponseWriter, r *http.Request, next http.Handler, typeName string) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(sw, r)
	if sw.status >= http.StatusBadRequest {
		return
	}

	types := []string{typeName}
	if rc.config.Dependents != nil {
		types = append(types, rc.config.Dependents(typeName)...)
	}
	for _, t := range types {
		if _, err := rc.config.Cache.Incr(r.Context(), generationKey(t)); err != nil {
			rc.logger.Error("cache invalidation failed", zap.String("type", t), zap.Error(err))
		}
	}
}

func writeCached(w http.ResponseWriter, r *http.Request, cached *cachedResponse) {
	w.Header().Set("ETag", cached.ETag)
	if matchesETag(r.Header.Get("If-None-Match"), cached.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", cached.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(cached.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(cached.Body)
}

// bufferedWriter holds a response until it is known whether it is cacheable
type bufferedWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if !b.wroteHeader {
		b.status = status
		b.wroteHeader = true
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	w.Write(b.body.Bytes())
}

// statusWriter records the status code of a write
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(status int) {
	if s.wroteHeader {
		return
	}
	s.status = status
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}
