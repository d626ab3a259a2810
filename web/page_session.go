package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/components/input"
	"github.com/bledrive/bledrive/components/input/webcontrol"
	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/services/remotecontrol"
)

const (
	writeWait      = time.Second
	maxMessageSize = 4096
)

// pageSession connects one websocket to one remote control session and its link.
type pageSession struct {
	conn       *websocket.Conn
	link       *link.Link
	session    *remotecontrol.Session
	controller *webcontrol.Controller
	logger     logging.Logger

	writeMu sync.Mutex
	closed  bool
}

func newPageSession(conn *websocket.Conn, l *link.Link, joystick config.Joystick, logger logging.Logger) *pageSession {
	session := remotecontrol.New(l, joystick, logger.Named("session"))
	ps := &pageSession{
		conn:       conn,
		link:       l,
		session:    session,
		controller: webcontrol.NewController(logger.Named("input")),
		logger:     logger.With("session", session.ID().String()),
	}
	session.OnStatus(func(status remotecontrol.Status) {
		ps.writeJSON(newStatusMessage(status))
	})
	session.OnView(func(view remotecontrol.View) {
		ps.writeJSON(newPositionMessage(view))
	})
	return ps
}

func (ps *pageSession) id() uuid.UUID {
	return ps.session.ID()
}

// run reads page messages until the socket closes or ctx is done. The link is closed on return.
func (ps *pageSession) run(ctx context.Context) {
	defer ps.closeNow()

	done := make(chan struct{})
	defer close(done)
	goutils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			// unblocks ReadMessage
			goutils.UncheckedError(ps.conn.Close())
		case <-done:
		}
	})

	if err := ps.session.Start(ctx, ps.controller); err != nil {
		ps.logger.Errorw("cannot start session", "error", err)
		return
	}
	ps.trigger(ctx, input.Event{Event: input.Connect})
	ps.writeJSON(newPositionMessage(ps.session.Snapshot()))

	ps.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := ps.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				ctx.Err() == nil {
				ps.logger.Debugw("websocket read failed", "error", err)
			}
			break
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ps.logger.Debugw("ignored malformed page message", "message", string(data), "error", err)
			continue
		}
		ev, ok := msg.event()
		if !ok {
			ps.logger.Debugw("ignored unknown page message", "message", string(data))
			continue
		}
		ps.trigger(ctx, ev)
	}

	// a page closed mid-drag leaves the last command in effect, like leaving the pad
	ps.trigger(context.Background(), input.Event{Event: input.Disconnect})
}

func (ps *pageSession) trigger(ctx context.Context, ev input.Event) {
	if err := ps.controller.TriggerEvent(ctx, ev); err != nil {
		ps.logger.Debugw("event not delivered", "event", ev.Event, "control", ev.Control, "error", err)
	}
}

// writeJSON sends v to the page. Errors are logged; the reader notices a dead socket.
func (ps *pageSession) writeJSON(v interface{}) {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	if ps.closed {
		return
	}
	goutils.UncheckedError(ps.conn.SetWriteDeadline(time.Now().Add(writeWait)))
	if err := ps.conn.WriteJSON(v); err != nil {
		ps.logger.Debugw("error writing to page", "error", err)
	}
}

// closeNow closes the link and the socket, and cancels a connect in progress.
func (ps *pageSession) closeNow() {
	ps.writeMu.Lock()
	if ps.closed {
		ps.writeMu.Unlock()
		return
	}
	ps.closed = true
	ps.writeMu.Unlock()

	if ps.link != nil {
		if err := ps.link.Close(); err != nil {
			ps.logger.Debugw("error closing link", "error", err)
		}
	}
	if ps.session != nil {
		ps.session.Close()
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	goutils.UncheckedError(ps.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)))
	goutils.UncheckedError(ps.conn.Close())
}
