package policy

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	policysvc "github.com/riverguard/parametric-api/internal/service/policy"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/httputil"
)

type Handler struct {
	policies *policysvc.Service
}

func NewHandler(policies *policysvc.Service) *Handler {
	return &Handler{policies: policies}
}

type createRequest struct {
	PolicyAddress  string  `json:"policy_address" binding:"required"`
	Policyholder   string  `json:"policyholder" binding:"required"`
	CoverageAmount float64 `json:"coverage_amount" binding:"required,amount"`
	PremiumAmount  float64 `json:"premium_amount" binding:"gte=0"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid policy request", err))
		return
	}

	policy, err := h.policies.Create(c.Request.Context(), policysvc.CreateInput{
		PolicyAddress:  req.PolicyAddress,
		Policyholder:   req.Policyholder,
		CoverageAmount: req.CoverageAmount,
		PremiumAmount:  req.PremiumAmount,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, policy)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid policy id", err))
		return
	}

	policy, err := h.policies.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, policy)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	policies, err := h.policies.List(c.Request.Context(), limit, offset)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, policies)
}
