package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/oms/internal/observability/logger"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
)

type submitOrderRequest struct {
	AccountID     string   `json:"account_id"`
	ClientOrderID string   `json:"client_order_id"`
	SourceChannel string   `json:"source_channel"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	OrderType     string   `json:"order_type"`
	Quantity      float64  `json:"quantity"`
	LimitPrice    *float64 `json:"limit_price"`
	StopPrice     *float64 `json:"stop_price"`
	TimeInForce   string   `json:"time_in_force"`
}

type submitOrderResponse struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	Created       bool   `json:"created"`
	Message       string `json:"message"`
}

func (s *Server) registerOrderRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/orders", s.SubmitOrder)
	v1.GET("/orders/:id", s.GetOrder)
	v1.GET("/orders/:id/validation", s.GetOrderValidation)
	v1.GET("/orders/:id/events", s.GetOrderEvents)
}

func (s *Server) SubmitOrder(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		verr := &orderdomain.ValidationErrors{}
		verr.Add("request", "invalid_request", "invalid request body")
		AbortWithError(c, verr)
		return
	}

	result, err := s.orderSvc.Admit(c.Request.Context(), orderdomain.AdmitRequest{
		AccountID:     req.AccountID,
		ClientOrderID: req.ClientOrderID,
		SourceChannel: req.SourceChannel,
		RequestID:     obslogger.RequestID(c),
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		TimeInForce:   req.TimeInForce,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	message := "order accepted"
	if !result.Created {
		status = http.StatusOK
		message = "duplicate submission, returning original order"
	}

	c.JSON(status, submitOrderResponse{
		OrderID:       result.Order.ID.String(),
		ClientOrderID: result.Order.ClientOrderID,
		Status:        string(result.Order.Status),
		Created:       result.Created,
		Message:       message,
	})
}

func (s *Server) GetOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	order, err := s.orderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order.Snapshot()})
}

// GetOrderValidation returns the validator's outcome for an order, or 404
// while the order is still in flight.
func (s *Server) GetOrderValidation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	order, err := s.orderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcome, err := s.validationSvc.FindByOrderID(c.Request.Context(), s.db, order.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if outcome == nil {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

// GetOrderEvents lists the outbox rows written for an order, published or
// not. Intended for operators chasing a stuck publication.
func (s *Server) GetOrderEvents(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	order, err := s.orderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.outboxRepo.FindByAggregateID(c.Request.Context(), s.db, order.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}
