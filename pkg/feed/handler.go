// Package feed streams registry events to websocket observers.
package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"assetledger/pkg/caller"
	"assetledger/pkg/registry"
	"assetledger/pkg/response"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

type Handler struct {
	manager  *ConnectionManager
	logger   *log.Entry
	upgrader websocket.Upgrader
}

// NewHandler builds the feed endpoints. allowedOrigins restricts browser
// origins; an empty list or "*" accepts any origin.
func NewHandler(manager *ConnectionManager, allowedOrigins []string) *Handler {
	return &Handler{
		manager: manager,
		logger:  log.WithField("component", "feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/events", h.HandleWebSocketGin)
	router.GET("/events/status", h.GetStatusGin)
}

// Run forwards events to observers until the channel closes.
func (h *Handler) Run(ctx context.Context, events <-chan registry.Event) {
	for e := range events {
		delivered, dropped := h.manager.Broadcast(e)
		if dropped > 0 {
			h.logger.WithFields(log.Fields{
				"event_id":  e.ID,
				"delivered": delivered,
				"dropped":   dropped,
			}).Warn("observers too slow; event dropped")
		}
	}
	h.manager.CloseAll()
}

// HandleWebSocketGin upgrades the request. The optional identity query
// parameter limits the stream to events naming that account.
//
// @Summary      Live registry events
// @Description  Upgrades to a websocket that receives every asset event as JSON
// @Tags         events
// @Param        identity query string false "Only events involving this account UUID"
// @Success      101
// @Failure      400 {object} response.APIResponse
// @Router       /ws/events [get]
func (h *Handler) HandleWebSocketGin(c *gin.Context) {
	var identity registry.Identity
	if raw := c.Query("identity"); raw != "" {
		id, err := caller.ParseIdentity(raw)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid identity, must be UUID", nil)
			return
		}
		identity = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	o := h.manager.AddObserver(conn, identity)
	h.logger.WithFields(log.Fields{"observer": o.ID, "identity": identity}).Info("observer connected")

	go h.readLoop(o)
	go h.writeLoop(o)
}

// readLoop only drains control frames; observers never send data.
func (h *Handler) readLoop(o *Observer) {
	defer func() {
		h.manager.RemoveObserver(o.ID)
		o.Conn.Close()
		h.logger.WithField("observer", o.ID).Info("observer disconnected")
	}()

	o.Conn.SetReadDeadline(time.Now().Add(pongWait))
	o.Conn.SetPongHandler(func(string) error {
		o.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := o.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("observer", o.ID).Debug("websocket read error")
			}
			return
		}
	}
}

func (h *Handler) writeLoop(o *Observer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-o.Done:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			o.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case msg := <-o.Send:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.Conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).WithField("observer", o.ID).Warn("write failed")
				h.manager.RemoveObserver(o.ID)
				return
			}

		case <-ticker.C:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.manager.RemoveObserver(o.ID)
				return
			}
		}
	}
}

// GetStatusGin godoc
// @Summary Feed status
// @Description Number of connected event observers
// @Tags events
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /events/status [get]
func (h *Handler) GetStatusGin(c *gin.Context) {
	response.SendAPIResponse(c, http.StatusOK, true, "feed status", map[string]any{
		"observers": h.manager.Count(),
	})
}
