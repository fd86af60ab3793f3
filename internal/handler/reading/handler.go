package reading

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/repository"
	thresholdsvc "github.com/riverguard/parametric-api/internal/service/threshold"
	"github.com/riverguard/parametric-api/internal/units"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/httputil"
)

type Handler struct {
	readings   repository.ReadingRepository
	thresholds *thresholdsvc.Service
}

func NewHandler(readings repository.ReadingRepository, thresholds *thresholdsvc.Service) *Handler {
	return &Handler{readings: readings, thresholds: thresholds}
}

func (h *Handler) List(c *gin.Context) {
	stationID := c.Param("station")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	readings, err := h.readings.List(c.Request.Context(), stationID, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, readings)
}

func (h *Handler) Latest(c *gin.Context) {
	stationID := c.Param("station")

	reading, err := h.readings.Latest(c.Request.Context(), stationID)
	if err != nil {
		if err == repository.ErrNotFound {
			httputil.RespondWithError(c, apperrors.NotFound("reading", err))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, reading)
}

// Status answers "is this station breaching" from the latest mirror
// reading and the station's configured thresholds.
func (h *Handler) Status(c *gin.Context) {
	status, err := h.thresholds.StatusFor(c.Request.Context(), c.Param("station"))
	if err != nil {
		if err == repository.ErrNotFound {
			httputil.RespondWithError(c, apperrors.NotFound("station", err))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}

func (h *Handler) GetThreshold(c *gin.Context) {
	threshold, err := h.thresholds.Get(c.Request.Context(), c.Param("station"))
	if err != nil {
		if err == repository.ErrNotFound {
			httputil.RespondWithError(c, apperrors.NotFound("threshold", err))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, threshold)
}

type thresholdRequest struct {
	WarningLevel  float64 `json:"warning_level" binding:"required,gt=0"`
	CriticalLevel float64 `json:"critical_level" binding:"required,gt=0"`
}

// UpdateThreshold sets a station's warning/critical pair. Operator
// only; levels arrive in metres.
func (h *Handler) UpdateThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid threshold request", err))
		return
	}

	warning, err := units.LevelToNative(req.WarningLevel)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid warning level", err))
		return
	}
	critical, err := units.LevelToNative(req.CriticalLevel)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid critical level", err))
		return
	}

	threshold := &model.Threshold{
		StationID:     c.Param("station"),
		WarningLevel:  warning,
		CriticalLevel: critical,
		Unit:          "cm",
	}
	if err := h.thresholds.Update(c.Request.Context(), threshold); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}
	httputil.RespondWithSuccess(c, threshold)
}
