package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/config"
)

const purgeBatch = 200

// cachedResponse is what a cache entry holds.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

// teeWriter forwards the response to the client and keeps up to limit
// bytes of it.
type teeWriter struct {
	http.ResponseWriter
	status  int
	buf     bytes.Buffer
	limit   int
	overrun bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.overrun {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.overrun = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// ResponseCache stores whole GET responses of the public catalogue in
// Redis.  Entries live under cfg.Prefix so that Purge can drop all of them
// when an admin changes an event.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log *zap.Logger
}

func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *ResponseCache {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *ResponseCache) enabled() bool { return rc.cfg.Enabled && rc.rdb != nil }

// key hashes the request identity.  c.Path() is the route template, so
// path parameters are added explicitly.
func (rc *ResponseCache) key(c echo.Context) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s %s", c.Request().Method, c.Path())
	for _, n := range c.ParamNames() {
		fmt.Fprintf(h, " %s=%s", n, c.Param(n))
	}
	if !strings.EqualFold(rc.cfg.KeyStrategy, "route") {
		fmt.Fprintf(h, " ?%s", c.Request().URL.RawQuery)
	}
	return rc.cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Purge deletes every cached response.  Seat counts are part of the cached
// bodies, so purchases rely on the short TTL while catalogue edits purge.
func (rc *ResponseCache) Purge(ctx context.Context) error {
	if !rc.enabled() {
		return nil
	}
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":*", purgeBatch).Iterator()
	batch := make([]string, 0, purgeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := rc.rdb.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatch {
			if err := flush(); err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
		}
	}
	if err := errors.Join(iter.Err(), flush()); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

func (rc *ResponseCache) lookup(ctx context.Context, key string) (cachedResponse, bool) {
	var cr cachedResponse
	raw, err := rc.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return cr, false
	case err != nil:
		rc.log.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		return cr, false
	}
	if err := json.Unmarshal(raw, &cr); err != nil || cr.Status == 0 {
		return cr, false
	}
	return cr, true
}

func (rc *ResponseCache) store(ctx context.Context, key string, cr cachedResponse) {
	raw, err := json.Marshal(cr)
	if err == nil {
		err = rc.rdb.SetEx(ctx, key, raw, rc.cfg.TTL).Err()
	}
	if err != nil {
		rc.log.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Middleware replays cached 200 responses with their original headers and
// records fresh ones.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := rc.key(c)
			res := c.Response()

			if hit, ok := rc.lookup(ctx, key); ok {
				for k, vals := range hit.Header {
					if k == echo.HeaderContentLength {
						continue
					}
					res.Header()[k] = vals
				}
				res.Header().Set("X-Cache", "HIT")
				res.WriteHeader(hit.Status)
				_, err := res.Write(hit.Body)
				return err
			}

			tw := &teeWriter{ResponseWriter: res.Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
			res.Writer = tw
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if tw.status != http.StatusOK || tw.overrun {
				return nil
			}
			hdr := res.Header().Clone()
			hdr.Del("X-Cache")
			rc.store(context.WithoutCancel(ctx), key, cachedResponse{Status: tw.status, Header: hdr, Body: tw.buf.Bytes()})
			return nil
		}
	}
}
