package echoapi

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-portals/core/session"
)

const (
	eventState        = "state"
	eventNotification = "notification"

	eventsBuffer = 32
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type sessionEvent struct {
	Type         string                `json:"type"`
	State        *sessionResponse      `json:"state,omitempty"`
	Notification *session.Notification `json:"notification,omitempty"`
}

// sessionEvents streams the state changes and notifications of the instance over a websocket.
// Events that the connection cannot keep up with are dropped.
func (s *Server) sessionEvents(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer conn.Close()

	events := make(chan sessionEvent, eventsBuffer)
	send := func(evt sessionEvent) {
		select {
		case events <- evt:
		default:
		}
	}
	state := func(st session.State) sessionEvent {
		resp := newSessionResponse(st)
		return sessionEvent{Type: eventState, State: &resp}
	}

	unsubState := inst.provider.Subscribe(func(st session.State) { send(state(st)) })
	defer unsubState()
	unsubNotif := inst.notifications.Add(func(n session.Notification) {
		send(sessionEvent{Type: eventNotification, Notification: &n})
	})
	defer unsubNotif()
	send(state(inst.provider.State()))

	// the read loop only detects the closing of the connection
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case evt := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug(fmt.Sprintf("writing session event to client %q: %v", inst.id, err))
				return nil
			}
		case <-ping.C:
			s.clients.check(ctx.Request().Context(), inst)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}
