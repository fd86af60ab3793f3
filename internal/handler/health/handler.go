package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/riverguard/parametric-api/pkg/queue"
)

type Handler struct {
	db    *sqlx.DB
	queue queue.Queue
}

func NewHandler(db *sqlx.DB, q queue.Queue) *Handler {
	return &Handler{db: db, queue: q}
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready verifies the dependencies a request would actually touch.
func (h *Handler) Ready(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}

	pending, err := h.queue.PendingCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"reason": "queue unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"pending_jobs": pending,
	})
}
