// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kwenda/internal/http/handlers"
	"kwenda/internal/http/middleware"
)

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	dispatchHandler := handlers.NewDispatchHandler(s.deps.Dispatch)
	api.POST("/dispatch/preview", dispatchHandler.Preview)
	api.POST("/dispatch", dispatchHandler.Dispatch)

	assignmentHandler := handlers.NewAssignmentHandler(s.deps.Assignments)
	api.GET("/assignments/:id", assignmentHandler.Get)
	api.POST("/assignments/:id/accept", assignmentHandler.Accept)
	api.POST("/assignments/:id/decline", assignmentHandler.Decline)

	locationHandler := handlers.NewLocationHandler(s.deps.Location)
	api.PUT("/drivers/:id/location", locationHandler.Update)
	api.PUT("/drivers/:id/availability", locationHandler.SetAvailability)

	if s.deps.Events != nil {
		eventsHandler := handlers.NewEventsHandler(s.deps.Events)
		api.GET("/orders/:id/events", eventsHandler.Stream)
	}
	return r
}
