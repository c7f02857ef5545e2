package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Mutter0815/LaunchPro/docs"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("platform", validPlatform)
	}
}

func validPlatform(fl validator.FieldLevel) bool {
	_, ok := campaign.ParsePlatform(fl.Field().String())
	return ok
}

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", docs.CampaignSwaggerHTML)
	})
	r.GET("/docs/campaign-api/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", docs.CampaignOpenAPI)
	})

	r.POST("/campaigns/launch", h.LaunchCampaign)
	r.GET("/campaigns", h.ListCampaigns)
	r.GET("/campaigns/:id", h.GetCampaign)
	r.GET("/campaigns/:id/launch", h.GetLaunch)
	r.GET("/campaigns/:id/audit", h.GetAudit)
	r.POST("/tasks/:stage", h.RunTask)

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}
