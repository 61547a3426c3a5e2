package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *app) publicSettingsHandler(c *gin.Context) {
	settings, err := a.eng().PublicSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *app) listSettingsHandler(c *gin.Context) {
	settings, err := a.eng().ListSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type settingRequest struct {
	Value *string `json:"value" binding:"required"`
}

func (a *app) updateSettingHandler(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	setting, err := a.eng().UpdateSetting(c.Request.Context(), c.Param("key"), *req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}
