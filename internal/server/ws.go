package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/responder"
)

// Frame types sent over /chat/ws.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// Frame is one server-to-client WebSocket message.
type Frame struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Route   responder.Name `json:"route,omitempty"`
	Error   string         `json:"error,omitempty"`
	Status  int            `json:"status,omitempty"`
}

// handleChatWS serves a conversation over one WebSocket. Each client
// message is a ChatRequest; its answer arrives as chunk frames followed by
// a done or error frame. Requests on one connection run one at a time.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Debug("websocket read", zap.String("session", sessionID), zap.Error(err))
			_ = conn.Close(websocket.StatusUnsupportedData, "expected a JSON chat request")
			return
		}

		if err := s.serveWSRequest(ctx, conn, sessionID, &req); err != nil {
			s.logger.Debug("websocket write", zap.String("session", sessionID), zap.Error(err))
			return
		}
	}
}

// serveWSRequest answers one request. Only write failures are returned;
// request failures become error frames.
func (s *Server) serveWSRequest(ctx context.Context, conn *websocket.Conn, sessionID string, req *ChatRequest) error {
	if err := s.check(req); err != nil {
		return s.writeFrame(ctx, conn, errorFrame(err))
	}

	reply, err := s.d.Handle(ctx, s.dispatchRequest(sessionID, req))
	if err != nil {
		return s.writeFrame(ctx, conn, errorFrame(err))
	}
	defer reply.Close()

	for chunk, err := range reply.Stream {
		if err != nil {
			s.logger.Warn("stream failed", zap.String("route", string(reply.Route)), zap.Error(err))
			return s.writeFrame(ctx, conn, errorFrame(err))
		}
		if err := s.writeFrame(ctx, conn, Frame{Type: FrameChunk, Content: chunk}); err != nil {
			return err
		}
	}
	return s.writeFrame(ctx, conn, Frame{Type: FrameDone, Route: reply.Route})
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	return wsjson.Write(ctx, conn, f)
}

func errorFrame(err error) Frame {
	return Frame{Type: FrameError, Error: apperr.Message(err), Status: apperr.HTTPStatus(err)}
}
