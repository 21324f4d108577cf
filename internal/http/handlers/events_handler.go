// README: Server-sent event stream of dispatch and assignment outcomes for one order.
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kwenda/internal/events"
)

const keepAliveInterval = 15 * time.Second

type EventsHandler struct {
	subscriber events.Subscriber
}

func NewEventsHandler(sub events.Subscriber) *EventsHandler {
	return &EventsHandler{subscriber: sub}
}

var orderEventTypes = []string{
	events.TypeDispatchAssigned,
	events.TypeDispatchNoDriver,
	events.TypeAssignmentAccepted,
	events.TypeAssignmentDeclined,
	events.TypeAssignmentExpired,
}

// Stream pushes every outcome for the order until the client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	if !requireRole(c, RoleDispatcher, RoleAdmin) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	ch, err := h.subscriber.Subscribe(c.Request.Context(), events.Filter{
		Types:   orderEventTypes,
		Subject: string(id),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// Send headers now so the client sees the stream open before any event.
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Type, e)
			return true
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}
