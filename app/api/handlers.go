package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/uni-comb/app/pipeline"
	"github.com/lysyi3m/uni-comb/app/staging"
)

const refreshSuggestion = "Run POST /api/refresh to generate the data first"

func NewHandler(refresher Refresher, store ArtifactStore, metricsHandler http.Handler,
	nextRun func() time.Time, version string) *Handler {
	return &Handler{
		refresher:      refresher,
		store:          store,
		metricsHandler: metricsHandler,
		nextRun:        nextRun,
		version:        version,
	}
}

func (h *Handler) GetIndex(c *gin.Context) {
	listing := make(map[string]string, len(endpoints))
	for _, e := range endpoints {
		listing[e.Route] = e.Description
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) GetUniversitiesCSV(c *gin.Context) {
	rc, size, err := h.store.OpenCSV()
	if errors.Is(err, staging.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "CSV file not found",
			"suggestion": refreshSuggestion,
		})
		return
	}
	if err != nil {
		slog.Error("Failed to open CSV artifact", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, "text/csv; charset=utf-8", rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + staging.CSVFileName + `"`,
	})
}

func (h *Handler) GetUniversitiesJSON(c *gin.Context) {
	records, err := h.store.ReadJSON()
	if errors.Is(err, staging.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "JSON file not found",
			"suggestion": refreshSuggestion,
		})
		return
	}
	if err != nil {
		slog.Error("Failed to read JSON artifact", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var lastUpdated *time.Time
	if len(records) > 0 {
		lastUpdated = &records[0].LastUpdated
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(records),
		"data":         records,
		"last_updated": lastUpdated,
	})
}

func (h *Handler) PostRefresh(c *gin.Context) {
	// A disconnecting client must not abort the run.
	ctx := context.WithoutCancel(c.Request.Context())

	result := h.refresher.Run(ctx, pipeline.TriggerManual)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if errors.Is(result.Err(), pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Refresh already running",
			"details":   result.Error,
			"timestamp": timestamp,
		})
		return
	}

	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Failed to refresh data",
			"details":   result.Error,
			"timestamp": timestamp,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Data refreshed successfully",
		"recordCount": result.RecordCount,
		"timestamp":   timestamp,
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"state":     h.refresher.State(),
		"artifacts": h.store.Status(),
	}

	if last := h.refresher.LastResult(); last != nil {
		health["last_run"] = last
	}

	if h.nextRun != nil {
		if next := h.nextRun(); !next.IsZero() {
			health["next_scheduled_run"] = next.UTC().Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) NotFound(c *gin.Context) {
	available := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		available = append(available, e.Route)
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error":              "Endpoint not found",
		"availableEndpoints": available,
	})
}
