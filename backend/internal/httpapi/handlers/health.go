package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe checks one dependency; nil means healthy.
type Probe func(ctx context.Context) error

type HealthHandler struct {
	probes      map[string]Probe
	connections func() int
}

// NewHealthHandler reports each named probe; a nil probe is shown as "disabled".
func NewHealthHandler(probes map[string]Probe, connections func() int) *HealthHandler {
	return &HealthHandler{probes: probes, connections: connections}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	resp := gin.H{}
	for name, probe := range h.probes {
		switch {
		case probe == nil:
			resp[name] = "disabled"
		case probe(ctx) != nil:
			resp[name] = "down"
			status = "degraded"
		default:
			resp[name] = "ok"
		}
	}
	resp["status"] = status
	if h.connections != nil {
		resp["connections"] = h.connections()
	}
	c.JSON(http.StatusOK, resp)
}
