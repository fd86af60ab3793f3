package claim

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/riverguard/parametric-api/internal/model"
	claimsvc "github.com/riverguard/parametric-api/internal/service/claim"
	ledgersvc "github.com/riverguard/parametric-api/internal/service/ledger"
	"github.com/riverguard/parametric-api/internal/units"
	apperrors "github.com/riverguard/parametric-api/pkg/errors"
	"github.com/riverguard/parametric-api/pkg/httputil"
)

type Handler struct {
	claims *claimsvc.Service
	ledger *ledgersvc.Service
}

func NewHandler(claims *claimsvc.Service, ledger *ledgersvc.Service) *Handler {
	return &Handler{claims: claims, ledger: ledger}
}

type submitRequest struct {
	PolicyID     uuid.UUID `json:"policy_id" binding:"required"`
	Policyholder string    `json:"policyholder" binding:"required"`
	Amount       float64   `json:"amount" binding:"required,amount"`
}

// Submit runs the synchronous settlement workflow: the response
// carries the settled claim or the business reason it was refused.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid claim request", err))
		return
	}

	claim, err := h.claims.SubmitClaim(c.Request.Context(), req.PolicyID, req.Policyholder, req.Amount)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicateClaim) && claim != nil {
			// Replays get the surviving claim alongside the refusal.
			httputil.RespondWithErrorData(c, err, claim)
			return
		}
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, claim)
}

type reviewRequest struct {
	Status model.ClaimStatus `json:"status" binding:"required"`
}

func (h *Handler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid claim id", err))
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid review request", err))
		return
	}

	claim, err := h.claims.ReviewClaim(c.Request.Context(), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, claim)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid claim id", err))
		return
	}

	claim, err := h.claims.GetClaim(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, claim)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	claims, err := h.claims.ListClaims(c.Request.Context(), limit, offset)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, claims)
}

func (h *Handler) PoolStatus(c *gin.Context) {
	status, err := h.claims.PoolStatus(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}

type fundRequest struct {
	Amount float64 `json:"amount" binding:"required,amount"`
}

// FundPool credits the settlement pool. Operator only.
func (h *Handler) FundPool(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid funding request", err))
		return
	}

	amount, err := units.AmountToNative(req.Amount)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid funding amount", err))
		return
	}

	if err := h.ledger.Credit(c.Request.Context(), amount); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	status, err := h.claims.PoolStatus(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}
