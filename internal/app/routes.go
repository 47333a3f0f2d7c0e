package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/simple-flow/find-image/internal/modules/finder"
	"github.com/simple-flow/find-image/internal/modules/storage"
	"github.com/simple-flow/find-image/internal/pkg/response"
)

func (a *App) registerRoutes(svc *finder.Finder) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})

	finder.NewHandler(svc).RegisterRoutes(r)
	storage.NewHandler(a.storage).RegisterRoutes(r)

	// Out-of-schedule trigger for the retention sweep.
	r.POST("/maintenance/sweep", a.runSweep)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *App) runSweep(c *gin.Context) {
	if !a.sched.RunNow(c.Request.Context(), sweepJobName) {
		response.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
