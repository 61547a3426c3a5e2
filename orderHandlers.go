package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orderdesk_backend/models"
)

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "invalid id "+strconv.Quote(c.Param("id")))
		return 0, false
	}
	return id, true
}

func (a *app) createOrderHandler(c *gin.Context) {
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := a.eng().CreateOrder(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (a *app) trackOrderHandler(c *gin.Context) {
	order, err := a.eng().GetOrderByPrivateKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *app) listOrdersHandler(c *gin.Context) {
	filter := &models.OrderListFilter{}
	if v := c.Query("status"); v != "" {
		status, err := models.ParseOrderStatus(v)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = &status
	}
	if v := c.Query("date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = &d
	}
	orders, err := a.eng().ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (a *app) getOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := a.eng().GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *app) orderHistoryHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	history, err := a.eng().OrderHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (a *app) updateOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.OrderEdit
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := a.eng().UpdateOrder(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (a *app) updateOrderStatusHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := a.eng().UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *app) returnOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.OrderReturnRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := a.eng().ApplyOrderReturn(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

func (a *app) deleteOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := a.eng().DeleteOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *app) previewInvoiceHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	docs, err := a.eng().PreviewInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}
