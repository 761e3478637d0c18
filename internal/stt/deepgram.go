package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// keepAliveInterval keeps the Deepgram socket open through quiet
// stretches; the API drops connections that go ~10s without traffic.
const keepAliveInterval = 5 * time.Second

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	APIKey         string
	Language       string // e.g., "en"
	Model          string // e.g., "nova-3"
	SampleRate     int    // e.g., 16000 for browser microphone PCM
	Encoding       string // e.g., "linear16"
	Channels       int    // e.g., 1 for mono
	Punctuate      bool
	InterimResults bool // emit provisional readings before each segment finalizes
	Endpointing    int  // milliseconds of silence for endpointing, 0 for default
	UtteranceEndMs int  // hard timeout after last speech, regardless of noise (0 for default)
	Logger         *log.Logger
}

// DeepgramClient implements the Client interface using Deepgram's
// streaming API. One client serves one audio stream; Close tears down
// the socket and both output channels.
type DeepgramClient struct {
	conn      *websocket.Conn
	logger    *log.Logger
	results   chan TranscriptResult
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex // gorilla conns allow one concurrent writer
	wg        sync.WaitGroup
}

func (cfg DeepgramConfig) listenURL() string {
	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("language", cfg.Language)
	q.Set("encoding", cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("punctuate", strconv.FormatBool(cfg.Punctuate))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	if cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(cfg.Endpointing))
	}
	if cfg.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMs))
	}
	return deepgramWSURL + "?" + q.Encode()
}

// NewDeepgramClient opens a streaming transcription socket.
func NewDeepgramClient(ctx context.Context, cfg DeepgramConfig) (*DeepgramClient, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.listenURL(), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &DeepgramClient{
		conn:    conn,
		logger:  logger,
		results: make(chan TranscriptResult, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.keepAliveLoop()

	return c, nil
}

// StreamAudio sends one chunk of audio to Deepgram.
func (c *DeepgramClient) StreamAudio(ctx context.Context, audio []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Results returns the channel for receiving transcription results.
func (c *DeepgramClient) Results() <-chan TranscriptResult {
	return c.results
}

// Errors returns the channel for receiving errors.
func (c *DeepgramClient) Errors() <-chan error {
	return c.errors
}

// Close asks Deepgram to finish the stream and closes the connection.
func (c *DeepgramClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
		c.writeMu.Unlock()

		err = c.conn.Close()

		// Both loops must exit before the channels close.
		c.wg.Wait()
		close(c.results)
		close(c.errors)
	})
	return err
}

// keepAliveLoop sends periodic KeepAlive frames so the socket survives
// silence on the audio side.
func (c *DeepgramClient) keepAliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "KeepAlive"}`))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// deepgramResponse is the subset of the Results message we consume.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// readLoop parses transcription messages until the socket dies or Close
// is called.
func (c *DeepgramClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		result, ok := c.parseResult(msg)
		if !ok {
			continue
		}

		select {
		case <-c.done:
			return
		case c.results <- result:
		}
	}
}

// parseResult extracts a TranscriptResult from one raw message. Empty
// transcripts are kept only when they carry a boundary signal, which
// downstream uses to finalize the current sentence.
func (c *DeepgramClient) parseResult(msg []byte) (TranscriptResult, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		c.logger.Printf("deepgram: failed to parse response: %v", err)
		return TranscriptResult{}, false
	}
	if resp.Type != "Results" {
		return TranscriptResult{}, false
	}

	result := TranscriptResult{
		SegmentFinal: resp.IsFinal,
		SpeechFinal:  resp.SpeechFinal,
	}
	if len(resp.Channel.Alternatives) > 0 {
		alt := resp.Channel.Alternatives[0]
		result.Text = alt.Transcript
		result.Confidence = alt.Confidence
	}

	if result.Text == "" && !result.SegmentFinal && !result.SpeechFinal {
		return TranscriptResult{}, false
	}
	return result, true
}
