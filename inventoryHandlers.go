package main

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/models/reports"
)

type revisionRow struct {
	*models.RevisionProduct
	Available int `json:"available"`
}

func (a *app) revisionListHandler(c *gin.Context) {
	rows, err := a.eng().RevisionList(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]revisionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, revisionRow{RevisionProduct: r, Available: r.Available()})
	}
	c.JSON(http.StatusOK, out)
}

func (a *app) revisionExportHandler(c *gin.Context) {
	rows, err := a.eng().RevisionList(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.ExportRevisionList(&buf, rows); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=revision_%s.xlsx", a.now().Format("2006-01-02")))
	c.Data(http.StatusOK, reports.ExcelContentType, buf.Bytes())
}

type bulkStockRequest struct {
	Updates []models.StockUpdate `json:"updates"`
}

func (a *app) bulkSetStockHandler(c *gin.Context) {
	var req bulkStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	result, err := a.eng().BulkSetStock(c.Request.Context(), req.Updates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
