package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/handler"
	"github.com/EnkiSilicium/artisan-hub/internal/middleware"
	"github.com/EnkiSilicium/artisan-hub/internal/model"
	orderService "github.com/EnkiSilicium/artisan-hub/internal/service/order"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

type Handler struct {
	service orderService.OrderServicer
}

func NewHandler(service orderService.OrderServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.POST("/:id/transition", h.TransitionOrder)
		orders.GET("/:id", h.GetOrder)
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	order, err := h.service.Create(c.Request.Context(), &req, hintsFrom(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(order))
}

func (h *Handler) TransitionOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid order ID"))
		return
	}

	var req model.TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	order, err := h.service.Transition(c.Request.Context(), id, req.Status, hintsFrom(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid order ID"))
		return
	}

	order, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(order))
}

func hintsFrom(c *gin.Context) uow.Hints {
	return uow.Hints{
		CorrelationID: c.GetString(middleware.ContextRequestID),
		ActorID:       c.GetString(middleware.ContextActorID),
	}
}
