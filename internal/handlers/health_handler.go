package handlers

import (
	"context"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/sync-engine/internal/database"
	"github.com/maukemana/sync-engine/internal/objectstore"
)

// TokenChecker is the subset of upstream.Client the health handler probes:
// a successful token fetch (cached or freshly refreshed) stands in for
// "the upstream is reachable and our credentials are good".
type TokenChecker interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// HealthHandler serves GET /health, per spec.md §6.
type HealthHandler struct {
	db        *database.DB
	store     objectstore.ObjectStore
	upstream  TokenChecker
	startedAt time.Time
}

func NewHealthHandler(db *database.DB, store objectstore.ObjectStore, upstream TokenChecker) *HealthHandler {
	return &HealthHandler{db: db, store: store, upstream: upstream, startedAt: time.Now()}
}

// Health implements GET /health. Status is computed per SPEC_FULL.md
// "Degraded health detail": healthy when the document store, object store,
// and upstream token refresh all succeed; degraded when the document store
// is healthy but the upstream or object store probe fails; unhealthy when
// the document store itself is unreachable.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbErr := h.db.Health(ctx)
	storeErr := h.store.Ping(ctx)
	_, upstreamErr := h.upstream.GetAccessToken(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case dbErr != nil:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case storeErr != nil || upstreamErr != nil:
		status = "degraded"
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"services": gin.H{
			"database":    serviceState(dbErr),
			"objectStore": serviceState(storeErr),
			"upstream":    serviceState(upstreamErr),
		},
		"metrics": currentMetrics(h.startedAt),
	})
}

func serviceState(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func currentMetrics(startedAt time.Time) gin.H {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var rusage syscall.Rusage
	var cpuMs int64
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err == nil {
		cpuMs = (rusage.Utime.Sec+rusage.Stime.Sec)*1000 + int64(rusage.Utime.Usec+rusage.Stime.Usec)/1000
	}

	return gin.H{
		"uptime":   int64(time.Since(startedAt).Seconds()),
		"memoryMB": float64(mem.Alloc) / (1024 * 1024),
		"cpuMs":    cpuMs,
	}
}
