package subscription

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/letterspace/core/internal/pkg/pagination"
	"github.com/letterspace/core/internal/pkg/response"
	"github.com/letterspace/core/internal/pkg/token"
	"gorm.io/gorm"
)

type SubscribeDTO struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"  binding:"required"`
}

type Handler struct {
	svc *Service
	db  *gorm.DB
}

func NewHandler(svc *Service, db *gorm.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	g := rg.Group("/subscriptions")
	g.POST("", h.subscribe)
	g.GET("/confirm", h.confirm) // ?token=...
	g.GET("", adminMW, h.list)
}

func (h *Handler) subscribe(c *gin.Context) {
	var dto SubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), dto.Email, dto.Name)
	if err != nil {
		var pf *delivery.PermanentFailureError
		switch {
		case errors.Is(err, ErrValidation):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrDuplicateEmail):
			response.Conflict(c, "this email is already subscribed")
		case errors.As(err, &pf):
			// The row exists and stays pending; the operator can re-issue
			// a confirmation later.
			response.BadGateway(c, "subscription recorded, but the confirmation email could not be delivered")
		default:
			response.InternalError(c, err)
		}
		return
	}

	response.Created(c, gin.H{
		"id":     sub.ID,
		"email":  sub.Email,
		"status": sub.Status,
	})
}

func (h *Handler) confirm(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		response.BadRequest(c, "missing token")
		return
	}

	sub, err := h.svc.Confirm(c.Request.Context(), tokenStr)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			response.Unauthorized(c, "this confirmation link has expired, please subscribe again")
		case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrSignatureMismatch):
			response.Unauthorized(c, "invalid confirmation link")
		case errors.Is(err, ErrSubscriberNotFound):
			response.NotFound(c, "subscriber not found")
		default:
			response.InternalError(c, err)
		}
		return
	}

	response.OK(c, gin.H{
		"message": "subscription confirmed",
		"email":   sub.Email,
		"status":  sub.Status,
	})
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)

	var subs []models.SubscriberModel
	page, err := pagination.Paginate(
		h.db.Model(&models.SubscriberModel{}).Order("created_at DESC"), q, &subs)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, subs, page)
}
