package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/victornm/quizzard/internal/storage"
)

// Handler serves the diagnostics endpoints of a running app: prometheus
// metrics, storage tier status and the session snapshot.
func (a *App) Handler() http.Handler {
	e := gin.New()
	e.Use(gin.Recovery())

	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	e.GET("/status", func(c *gin.Context) {
		st := a.service.store.Status(c.Request.Context())

		code := http.StatusOK
		if st.Active == storage.TierNone {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"storage": st,
			"session": a.service.auth.State(),
			"draft": gin.H{
				"id":      a.service.drafts.Draft().ID,
				"pending": a.service.drafts.Pending(),
			},
		})
	})

	// Any request counts as user activity for the inactivity timer.
	e.POST("/activity", func(c *gin.Context) {
		a.service.supervisor.Touch()
		c.Status(http.StatusNoContent)
	})

	return e
}
