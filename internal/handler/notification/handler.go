package notification

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	notificationsvc "github.com/riverguard/parametric-api/internal/service/notification"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/httputil"
)

type Handler struct {
	notifications *notificationsvc.Service
}

func NewHandler(notifications *notificationsvc.Service) *Handler {
	return &Handler{notifications: notifications}
}

// Send queues a direct, template-free delivery. Operator only.
func (h *Handler) Send(c *gin.Context) {
	var req notificationsvc.SendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid send request", err))
		return
	}

	job, err := h.notifications.Send(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithAccepted(c, gin.H{"job_id": job.ID})
}

type triggerRequest struct {
	EventType string            `json:"event_type" binding:"required"`
	UserID    uuid.UUID         `json:"user_id" binding:"required"`
	Data      map[string]string `json:"data"`
}

// Trigger queues an event for fan-out, exactly as internal producers
// do. Operator only.
func (h *Handler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid trigger request", err))
		return
	}

	event := &model.TriggerEvent{
		EventType: req.EventType,
		UserID:    req.UserID,
		Data:      req.Data,
		Timestamp: time.Now(),
	}
	job, err := h.notifications.Trigger(c.Request.Context(), event)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithAccepted(c, gin.H{"job_id": job.ID})
}

func (h *Handler) ListLogs(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user id", err))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := h.notifications.ListLogs(c.Request.Context(), userID, limit, offset)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, logs)
}

func (h *Handler) ListInApp(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user id", err))
		return
	}
	unreadOnly := c.Query("unread_only") == "true"

	items, err := h.notifications.ListInApp(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) MarkInAppRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid notification id", err))
		return
	}

	if err := h.notifications.MarkInAppRead(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"read": true})
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user id", err))
		return
	}

	prefs, err := h.notifications.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, prefs)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user id", err))
		return
	}

	var prefs model.NotificationPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid preferences", err))
		return
	}
	prefs.UserID = userID
	prefs.UpdatedAt = time.Now()

	if err := h.notifications.UpdatePreferences(c.Request.Context(), &prefs); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, prefs)
}

type subscriptionRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	URL    string    `json:"url" binding:"required"`
	Secret string    `json:"secret" binding:"required"`
	Events string    `json:"events"`
}

func (h *Handler) CreateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid subscription request", err))
		return
	}

	sub := &model.WebhookSubscription{
		UserID:    req.UserID,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		CreatedAt: time.Now(),
	}
	if err := h.notifications.CreateSubscription(c.Request.Context(), sub); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, sub)
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user id", err))
		return
	}

	subs, err := h.notifications.ListSubscriptions(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, subs)
}

func (h *Handler) DeleteSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid subscription id", err))
		return
	}

	if err := h.notifications.DeleteSubscription(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": true})
}
