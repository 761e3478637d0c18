package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkriz/veritas/internal/factcheck"
)

// startHandshakeTimeout bounds how long a fresh ingest connection may
// sit idle before sending its start message.
const startHandshakeTimeout = 10 * time.Second

// ingestMessage is the inbound frame on the transcript ingest socket.
type ingestMessage struct {
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
	IsFinal  bool   `json:"is_final,omitempty"`
	Sequence uint64 `json:"sequence,omitempty"`
}

// handleTranscriptWS accepts pre-transcribed speech fragments over a
// websocket and runs them through the verification pipeline. The client
// opens with a start message, streams fragment messages, and ends with
// stop or by disconnecting.
func (r *Router) handleTranscriptWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("transcript ingest: upgrade failed: %v", err)
		return
	}

	start, ok := r.awaitStart(conn)
	if !ok {
		return
	}

	ps, ok := r.beginSession(conn, start.Title, "transcript")
	if !ok {
		return
	}
	defer ps.shutdown("disconnect")

	ps.writeJSONMessage(map[string]any{"type": "started", "session_id": ps.id})

	for {
		var msg ingestMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Printf("session %s: read error: %v", ps.id, err)
			}
			return
		}

		switch msg.Type {
		case "fragment":
			ps.pushFragment(factcheck.TranscriptFragment{
				Text:     msg.Text,
				IsFinal:  msg.IsFinal,
				Sequence: msg.Sequence,
			})
		case "stop":
			ps.shutdown("client")
			return
		default:
			r.logger.Printf("session %s: ignoring unknown message type %q", ps.id, msg.Type)
		}
	}
}

// awaitStart reads and validates the opening start message. On failure
// it closes the connection and returns ok=false.
func (r *Router) awaitStart(conn *websocket.Conn) (ingestMessage, bool) {
	conn.SetReadDeadline(time.Now().Add(startHandshakeTimeout))
	var start ingestMessage
	if err := conn.ReadJSON(&start); err != nil || start.Type != "start" {
		conn.WriteJSON(map[string]any{"type": "error", "error": "expected start message"})
		conn.Close()
		return ingestMessage{}, false
	}
	conn.SetReadDeadline(time.Time{})
	return start, true
}

// beginSession reserves a registry slot, persists the session row and
// builds the pipeline. On failure it closes the connection and returns
// ok=false.
func (r *Router) beginSession(conn *websocket.Conn, title, source string) (*pipelineSession, bool) {
	if !r.registry.Add() {
		conn.WriteJSON(map[string]any{"type": "error", "error": "server is draining, try again later"})
		conn.Close()
		return nil, false
	}

	ps := r.newPipelineSession(conn, title, source)
	r.registry.Register(ps)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.store.CreateSession(ctx, ps.id, title, source); err != nil {
		r.logger.Printf("session %s: failed to persist session row: %v", ps.id, err)
	}
	r.logSessionStart(ps)
	return ps, true
}

// writeStopped reports final pipeline metrics after a clean stop. The
// connection may already be closed by shutdown, in which case the write
// silently fails.
func (ps *pipelineSession) writeStopped() {
	ps.writeJSONMessage(map[string]any{
		"type":       "stopped",
		"session_id": ps.id,
		"metrics":    ps.coord.Metrics(),
	})
}
