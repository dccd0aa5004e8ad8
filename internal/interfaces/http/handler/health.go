package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/utilitybill/backend/internal/interfaces/http/dto"
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	name      string
	version   string
	checkers  map[string]Checker
	timeout   time.Duration
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. Each checker is pinged on
// /ready with the given timeout.
func NewHealthHandler(name, version string, checkers map[string]Checker, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{
		name:      name,
		version:   version,
		checkers:  checkers,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// HealthResponse is the liveness body
type HealthResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// ReadyResponse lists the outcome of every dependency check
type ReadyResponse struct {
	Checks map[string]string `json:"checks"`
}

// Health answers as long as the process can serve HTTP.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(HealthResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}))
}

// Ready pings every dependency concurrently and answers 503 if any fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		failed []string
	)
	for name, checker := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := "ok"
			if err := checker.Ping(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = status
			if status != "ok" {
				failed = append(failed, name)
			}
		}()
	}
	wg.Wait()

	body := ReadyResponse{Checks: checks}
	if len(failed) > 0 {
		sort.Strings(failed)
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse("NOT_READY", "dependency check failed: "+failed[0], body))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(body))
}
