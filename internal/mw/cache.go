package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// SnapshotCache caches successful GET responses keyed by request URI.
// Snapshot reads only change when a sweep completes, so serving them from
// memory keeps dashboard polling off the coordinator. Command and
// subscription routes must not be mounted behind it.
type SnapshotCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewSnapshotCache creates a cache whose entries expire after ttl.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Flush drops every cached response.
func (sc *SnapshotCache) Flush() {
	sc.store.Flush()
}

type capturedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves cached responses for GET requests and records cache
// misses on the way out.
func (sc *SnapshotCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, found := sc.store.Get(key); found {
			resp := hit.(capturedResponse)
			for k, v := range resp.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.WriteHeader(resp.status)
			c.Writer.Write(resp.body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = cw
		c.Next()

		if status := cw.Status(); status >= 200 && status < 300 {
			sc.store.Set(key, capturedResponse{
				status:  status,
				headers: cw.Header().Clone(),
				body:    cw.body.Bytes(),
			}, sc.ttl)
		}
	}
}

// FlushOnSuccess invalidates the cache after the wrapped handler
// succeeds. Mounted on the manual refresh route so a triggered sweep is
// not hidden behind stale cached snapshots.
func (sc *SnapshotCache) FlushOnSuccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			sc.Flush()
		}
	}
}
