package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orderdesk_backend/models"
)

var statusByKind = map[models.ErrorKind]int{
	models.ErrorKindValidation: http.StatusBadRequest,
	models.ErrorKindNotFound:   http.StatusNotFound,
	models.ErrorKindForbidden:  http.StatusForbidden,
	models.ErrorKindConflict:   http.StatusConflict,
}

// respondError is the single place engine errors become HTTP responses.
func respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "kind": models.ErrorKindInternal})
		return
	}

	body := gin.H{"error": err.Error(), "kind": kind}
	var bulkErr *models.BulkEditError
	if errors.As(err, &bulkErr) {
		body["failures"] = bulkErr.Failures
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": models.ErrorKindValidation})
}
