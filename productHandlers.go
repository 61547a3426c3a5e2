package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orderdesk_backend/models"
)

func (a *app) listProductsHandler(c *gin.Context) {
	products, err := a.eng().ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (a *app) createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	product, err := a.eng().CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

type bulkProductRequest struct {
	Products []*models.ProductUpdate `json:"products"`
}

func (a *app) bulkUpdateProductsHandler(c *gin.Context) {
	var req bulkProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	products, err := a.eng().BulkUpdateProducts(c.Request.Context(), req.Products)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_count": len(products), "products": products})
}
