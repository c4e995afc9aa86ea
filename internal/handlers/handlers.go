package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"masthead/internal/countdown"
	"masthead/internal/gateway"
	"masthead/internal/hub"
	"masthead/internal/metrics"
	"masthead/internal/mutation"
	"masthead/internal/schedule"
	"masthead/internal/store"
	"masthead/pkg/logging"
	"masthead/pkg/models"
)

var (
	articleStore   *store.Store
	engine         *mutation.Engine
	healthPoller   *store.HealthPoller
	ticker         *countdown.Ticker
	wsHub          *hub.Hub
	slotTemplate   []models.TimeSlot
	logger         logging.Logger
	serviceMetrics *metrics.Metrics
)

// Init initializes the handlers package with its collaborators
func Init(st *store.Store, eng *mutation.Engine, poller *store.HealthPoller, tick *countdown.Ticker, h *hub.Hub, template []models.TimeSlot, log logging.Logger, m *metrics.Metrics) {
	articleStore = st
	engine = eng
	healthPoller = poller
	ticker = tick
	wsHub = h
	slotTemplate = template
	logger = log
	serviceMetrics = m
}

// GetArticles returns the cached article list for an optional status filter.
// Stale data is served immediately while a refresh runs in the background.
func GetArticles(c *gin.Context) {
	status := models.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid status filter: " + string(status)})
		return
	}

	key := store.ArticlesKey(status)
	articles, stale, err := articleStore.Get(c.Request.Context(), key)
	if err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"key": string(key),
		}).Error("Failed to load articles")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Failed to load articles from backend"})
		return
	}

	// An empty result set is a real answer, distinct from never-fetched.
	if articles == nil {
		articles = []models.Article{}
	}
	c.JSON(http.StatusOK, models.ArticlesView{
		Articles: articles,
		Loading:  articleStore.InFlight(key),
		Stale:    stale,
	})
}

// ActionRequest is the body of POST /api/articles/:id/action.
type ActionRequest struct {
	Action     string `json:"action" binding:"required"`
	EditedPost string `json:"edited_post,omitempty"`
}

// PostAction applies a moderation action through the optimistic mutation
// engine. A second action on an article with one outstanding is rejected
// with 409 and never reaches the backend.
func PostAction(c *gin.Context) {
	articleID := c.Param("id")

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid action request: " + err.Error()})
		return
	}

	action := models.Action(req.Action)
	if !action.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown action: " + req.Action})
		return
	}

	start := time.Now()
	outcome, err := engine.Apply(c.Request.Context(), articleID, action, req.EditedPost)
	if serviceMetrics != nil {
		serviceMetrics.MutationTime.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	}

	if errors.Is(err, mutation.ErrBusy) {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "An action for this article is already in flight"})
		return
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Backend rejected action: " + apiErr.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Backend unreachable, action rolled back"})
		return
	}

	c.JSON(http.StatusOK, outcome.Response)
}

// GetSchedule derives the day's posting timeline from the approved set.
func GetSchedule(c *gin.Context) {
	key := store.ArticlesKey(models.StatusApproved)
	approved, _, err := articleStore.Get(c.Request.Context(), key)
	if err != nil {
		logger.WithError(err).Error("Failed to load approved articles for schedule")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Failed to load approved articles"})
		return
	}

	c.JSON(http.StatusOK, schedule.View(time.Now(), slotTemplate, approved))
}

// GetCountdown returns the current countdown view without attaching a
// streaming observer.
func GetCountdown(c *gin.Context) {
	c.JSON(http.StatusOK, ticker.Snapshot())
}

// GetBackendHealth reports the most recent poll of the backend health
// endpoint.
func GetBackendHealth(c *gin.Context) {
	result, probed := healthPoller.Last()
	if !probed {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "unknown"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostIngest triggers bulk ingestion on the backend and invalidates the
// article queries.
func PostIngest(c *gin.Context) {
	result, err := engine.Ingest(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("Ingestion trigger failed")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Ingestion failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ServeWS upgrades the request to a WebSocket session on the hub.
func ServeWS(c *gin.Context) {
	wsHub.ServeWS(c.Writer, c.Request)
}

// GetHubStats exposes hub client and subscription counts.
func GetHubStats(c *gin.Context) {
	c.JSON(http.StatusOK, wsHub.GetStats())
}
