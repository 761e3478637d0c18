package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pkriz/veritas/internal/eventlog"
	"github.com/pkriz/veritas/internal/factcheck"
	"github.com/pkriz/veritas/internal/stt"
)

// handleAudioWS accepts raw PCM audio over a websocket, transcribes it
// through the STT provider and feeds the transcript into the
// verification pipeline. Binary frames carry audio; text frames carry
// the same start/stop control messages as the transcript socket.
func (r *Router) handleAudioWS(w http.ResponseWriter, req *http.Request) {
	if r.cfg.DeepgramAPIKey == "" {
		http.Error(w, `{"error": "audio ingest is not configured"}`, http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("audio ingest: upgrade failed: %v", err)
		return
	}

	start, ok := r.awaitStart(conn)
	if !ok {
		return
	}

	ps, ok := r.beginSession(conn, start.Title, "audio")
	if !ok {
		return
	}
	defer ps.shutdown("disconnect")

	sttCtx, cancelSTT := context.WithCancel(req.Context())
	defer cancelSTT()

	sttClient, err := stt.NewDeepgramClient(sttCtx, stt.DeepgramConfig{
		APIKey:         r.cfg.DeepgramAPIKey,
		Language:       r.cfg.STTLanguage,
		Model:          "nova-3",
		SampleRate:     r.cfg.STTSampleRate,
		Encoding:       "linear16",
		Channels:       1,
		Punctuate:      true,
		InterimResults: true,
		Endpointing:    r.cfg.STTEndpointingMs,
		Logger:         r.logger,
	})
	if err != nil {
		r.logger.Printf("session %s: stt connect failed: %v", ps.id, err)
		ps.writeJSONMessage(map[string]any{"type": "error", "error": "speech recognition unavailable"})
		ps.shutdown("stt_error")
		return
	}
	defer sttClient.Close()

	ps.writeJSONMessage(map[string]any{"type": "started", "session_id": ps.id})

	go r.pumpTranscripts(ps, sttClient)
	go func() {
		for err := range sttClient.Errors() {
			r.logger.Printf("session %s: stt error: %v", ps.id, err)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Printf("session %s: read error: %v", ps.id, err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			ps.touch()
			ps.audioBytes.Add(int64(len(data)))
			if err := sttClient.StreamAudio(sttCtx, data); err != nil {
				r.logger.Printf("session %s: stt stream failed: %v", ps.id, err)
				ps.shutdown("stt_error")
				return
			}
		case websocket.TextMessage:
			var msg ingestMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "stop" {
				ps.shutdown("client")
				return
			}
		}
	}
}

// pumpTranscripts converts STT results into transcript fragments. Each
// interim reading supersedes the previous one for the same utterance;
// the assembler handles that via the final flag and sequence numbers.
func (r *Router) pumpTranscripts(ps *pipelineSession, client stt.Client) {
	var seq atomic.Uint64
	for res := range client.Results() {
		if res.Text == "" {
			continue
		}
		r.eventLog.LogAsync(ps.id, eventlog.EventSTTResult, map[string]any{
			"text":          res.Text,
			"confidence":    res.Confidence,
			"segment_final": res.SegmentFinal,
		})
		ps.pushFragment(factcheck.TranscriptFragment{
			Text:     res.Text,
			IsFinal:  res.SegmentFinal,
			Sequence: seq.Add(1),
		})
	}
}
