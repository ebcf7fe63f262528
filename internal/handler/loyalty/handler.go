package loyalty

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/handler"
	loyaltyService "github.com/EnkiSilicium/artisan-hub/internal/service/loyalty"
)

type Handler struct {
	service loyaltyService.LoyaltyServicer
}

func NewHandler(service loyaltyService.LoyaltyServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	loyalty := r.Group("/loyalty")
	{
		loyalty.GET("/:customer_id", h.GetBalance)
	}
}

func (h *Handler) GetBalance(c *gin.Context) {
	customerID, err := uuid.Parse(c.Param("customer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid customer ID"))
		return
	}

	account, err := h.service.Balance(c.Request.Context(), customerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(account))
}
