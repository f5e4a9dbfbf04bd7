package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/pipeline"
)

const (
	wsWriteWait   = 10 * time.Second
	wsTurnBacklog = 8
)

// StreamMessage is a client frame on the conversation socket
type StreamMessage struct {
	Event string `json:"event"` // start, message, audio, stop

	// start
	Character      string `json:"character,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	SessionID      string `json:"session_id,omitempty"`

	// message
	Text           string `json:"text,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`

	// audio
	Audio    string `json:"audio,omitempty"` // base64 encoded upload
	Filename string `json:"filename,omitempty"`
}

// StreamEvent is a server frame on the conversation socket
type StreamEvent struct {
	Event     string           `json:"event"` // started, reply, error, stopped
	SessionID string           `json:"session_id,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ConversationSession holds the state of one socket. Turns run one at a
// time in arrival order and share a dialogue session.
type ConversationSession struct {
	conn     *websocket.Conn
	pipeline Pipeline

	mu             sync.RWMutex
	isActive       bool
	sessionID      string
	character      string
	targetLanguage string

	turns      chan StreamMessage
	outbound   chan StreamEvent
	writerDone chan struct{}

	correlationID string
	logger        zerolog.Logger
}

func newConversationSession(conn *websocket.Conn, p Pipeline, logger zerolog.Logger) *ConversationSession {
	logger, correlationID := observability.WithCorrelationID(logger, "")
	return &ConversationSession{
		conn:          conn,
		pipeline:      p,
		isActive:      true,
		turns:         make(chan StreamMessage, wsTurnBacklog),
		outbound:      make(chan StreamEvent, wsTurnBacklog),
		writerDone:    make(chan struct{}),
		correlationID: correlationID,
		logger:        logger.With().Str("transport", "ws").Logger(),
	}
}

func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	session := newConversationSession(conn, s.pipeline, s.logger)
	session.logger.Info().Msg("Conversation socket connected")

	base := observability.ContextWithLogger(r.Context(), session.logger)
	turnCtx, cancelTurns := context.WithCancel(base)
	defer cancelTurns()
	writeCtx, cancelWrites := context.WithCancel(base)
	defer cancelWrites()

	go session.processOutgoingEvents(writeCtx)
	turnsDone := make(chan struct{})
	go func() {
		defer close(turnsDone)
		session.processTurns(turnCtx)
	}()

	// A stop lets queued turns finish; a dropped socket abandons them.
	stopped := session.processIncomingMessages()
	if !stopped {
		cancelTurns()
	}
	<-turnsDone
	if stopped {
		session.deliver(writeCtx, StreamEvent{Event: "stopped", SessionID: session.currentSessionID()})
	}
	cancelWrites()
	<-session.writerDone
	session.logger.Info().Str("session_id", session.currentSessionID()).Msg("Conversation socket closed")
}

// processIncomingMessages reads client frames until the socket closes or the
// client sends stop. It reports whether the client stopped cleanly.
func (c *ConversationSession) processIncomingMessages() bool {
	defer close(c.turns)

	for {
		c.mu.RLock()
		active := c.isActive
		c.mu.RUnlock()
		if !active {
			return false
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			c.deactivate()
			return false
		}

		var msg StreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.send(StreamEvent{Event: "error", Error: "malformed message"})
			continue
		}

		switch msg.Event {
		case "start":
			c.mu.Lock()
			c.character = msg.Character
			c.targetLanguage = msg.TargetLanguage
			if msg.SessionID != "" {
				c.sessionID = msg.SessionID
			}
			sessionID := c.sessionID
			c.mu.Unlock()
			c.logger.Info().
				Str("character", msg.Character).
				Str("target_language", msg.TargetLanguage).
				Msg("Conversation started")
			c.send(StreamEvent{Event: "started", SessionID: sessionID})

		case "message", "audio":
			select {
			case c.turns <- msg:
			default:
				c.send(StreamEvent{Event: "error", Error: "too many turns in flight"})
			}

		case "stop":
			c.deactivate()
			c.logger.Info().Msg("Conversation stopped by client")
			return true

		default:
			c.send(StreamEvent{Event: "error", Error: "unknown event " + msg.Event})
		}
	}
}

// processTurns runs queued turns through the pipeline in order
func (c *ConversationSession) processTurns(ctx context.Context) {
	for msg := range c.turns {
		if ctx.Err() != nil {
			return
		}
		res := c.runTurn(ctx, msg)
		if res.SessionID != "" {
			c.mu.Lock()
			c.sessionID = res.SessionID
			c.mu.Unlock()
		}
		if !c.deliver(ctx, StreamEvent{Event: "reply", SessionID: res.SessionID, Result: &res}) {
			return
		}
	}
}

func (c *ConversationSession) runTurn(ctx context.Context, msg StreamMessage) pipeline.Result {
	c.mu.RLock()
	character, target, sessionID := c.character, c.targetLanguage, c.sessionID
	c.mu.RUnlock()

	if msg.Event == "audio" {
		data, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil || len(data) == 0 {
			return pipeline.Result{Failure: &pipeline.Failure{
				Stage:   pipeline.StageUpload,
				Kind:    pipeline.KindInvalidInput,
				Message: "audio must be non-empty base64",
			}}
		}
		observability.RecordAudioBytes("in", int64(len(data)))
		return c.pipeline.ProcessAudio(ctx, pipeline.AudioRequest{
			Audio:          bytes.NewReader(data),
			Filename:       msg.Filename,
			TargetLanguage: target,
			Character:      character,
			SessionID:      sessionID,
		})
	}

	return c.pipeline.ProcessText(ctx, pipeline.TextRequest{
		Text:           msg.Text,
		SourceLanguage: msg.SourceLanguage,
		TargetLanguage: target,
		Character:      character,
		SessionID:      sessionID,
	})
}

// processOutgoingEvents is the only writer on the socket. writerDone is
// closed when it returns.
func (c *ConversationSession) processOutgoingEvents(ctx context.Context) {
	defer close(c.writerDone)
	for {
		select {
		case <-ctx.Done():
			c.drainOutbound()
			return
		case ev := <-c.outbound:
			if err := c.write(ev); err != nil {
				c.logger.Warn().Err(err).Str("event", ev.Event).Msg("WebSocket write failed")
				c.deactivate()
				return
			}
		}
	}
}

// drainOutbound flushes events queued before shutdown, such as the stop ack
func (c *ConversationSession) drainOutbound() {
	for {
		select {
		case ev := <-c.outbound:
			if err := c.write(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *ConversationSession) write(ev StreamEvent) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(ev)
}

// send queues an advisory event and drops it when the writer is backed up
func (c *ConversationSession) send(ev StreamEvent) {
	select {
	case c.outbound <- ev:
	default:
		c.logger.Warn().Str("event", ev.Event).Msg("Outbound queue full, dropping event")
	}
}

// deliver queues an event the client must receive, waiting for room. It
// reports false when ctx ends or the writer has gone away first.
func (c *ConversationSession) deliver(ctx context.Context, ev StreamEvent) bool {
	select {
	case c.outbound <- ev:
		return true
	case <-ctx.Done():
	case <-c.writerDone:
	}
	c.logger.Warn().Str("event", ev.Event).Msg("Event not delivered, socket closing")
	return false
}

func (c *ConversationSession) deactivate() {
	c.mu.Lock()
	c.isActive = false
	c.mu.Unlock()
}

func (c *ConversationSession) currentSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
