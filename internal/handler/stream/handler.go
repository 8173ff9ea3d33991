package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
	aiService "github.com/stemforge/stem-forge/backend/internal/service/ai"
	chatService "github.com/stemforge/stem-forge/backend/internal/service/chat"
	"github.com/stemforge/stem-forge/backend/pkg/utils"
)

// Handler manages tutor conversations over SSE, plain JSON and websockets
type Handler struct {
	aiService *aiService.Service
	chatSvc   *chatService.Service
	ws        *wsHandler
}

// New creates a new stream handler. chatSvc may be nil, in which case
// session history and persistence are unavailable.
func New(aiSvc *aiService.Service, chatSvc *chatService.Service) *Handler {
	h := &Handler{
		aiService: aiSvc,
		chatSvc:   chatSvc,
	}
	h.ws = newWSHandler(h)
	return h
}

// RegisterRoutes registers the chat endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
	r.Post("/chat/simple", h.handleSimple)
	r.Get("/chat/ws", h.ws.handleWebSocket)
}

// ChatRequest is the body accepted by the chat endpoints
type ChatRequest struct {
	Prompt  string           `json:"prompt"`
	ChatID  string           `json:"chat_id,omitempty"`
	History []aiService.Turn `json:"history,omitempty"`
	Persist bool             `json:"persist,omitempty"`
}

// chunkFrame is a streamed fragment or the final success frame
type chunkFrame struct {
	Chunk        string  `json:"chunk"`
	Done         bool    `json:"done"`
	FullResponse *string `json:"full_response,omitempty"`
}

// errorFrame terminates a failed stream
type errorFrame struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ChatRequest{}, errors.Wrap(err, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ChatRequest{}, aiService.ErrPromptRequired
	}
	return req, nil
}

// respondRequestError reports a rejected chat request body.
func respondRequestError(w http.ResponseWriter, err error) {
	if errors.Is(err, aiService.ErrPromptRequired) {
		utils.RespondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	utils.RespondError(w, http.StatusBadRequest, "invalid request body")
}

// handleStream streams the tutor answer as Server-Sent Events
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		respondRequestError(w, err)
		return
	}

	ctx := r.Context()
	stream, err := h.aiService.Stream(ctx, req.Prompt, h.resolveHistory(ctx, req))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer stream.Close()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	for {
		event, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			// the producer stopped without a terminal event: the client went away
			return
		}
		if recvErr != nil {
			log.Warn().Err(recvErr).Msg("[stream] receive failed")
			return
		}

		switch event.Type {
		case aiService.EventChunk:
			if err := utils.SendSSEChunk(w, flusher, chunkFrame{Chunk: event.Chunk}); err != nil {
				log.Debug().Err(err).Msg("[stream] client disconnected")
				return
			}
		case aiService.EventDone:
			full := event.FullResponse
			if err := utils.SendSSEChunk(w, flusher, chunkFrame{Done: true, FullResponse: &full}); err != nil {
				log.Debug().Err(err).Msg("[stream] client disconnected before completion frame")
			}
			h.persistExchange(context.WithoutCancel(ctx), req, full)
			return
		case aiService.EventError:
			if err := utils.SendSSEChunk(w, flusher, errorFrame{Error: event.Err.Error(), Done: true}); err != nil {
				log.Debug().Err(err).Msg("[stream] client disconnected before error frame")
			}
			return
		}
	}
}

// handleSimple returns the whole tutor answer in one JSON document
func (h *Handler) handleSimple(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		respondRequestError(w, err)
		return
	}

	ctx := r.Context()
	text, err := h.aiService.Complete(ctx, req.Prompt, h.resolveHistory(ctx, req))
	if err != nil {
		text = aiService.ErrorText(err)
	} else {
		h.persistExchange(ctx, req, text)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"response":  text,
		"timestamp": chat.FormatTimestamp(time.Now()),
	})
}

// resolveHistory prefers the history sent by the client and otherwise reads
// prior turns from the referenced session.
func (h *Handler) resolveHistory(ctx context.Context, req ChatRequest) []aiService.Turn {
	if len(req.History) > 0 || req.ChatID == "" || h.chatSvc == nil {
		return req.History
	}

	session, err := h.chatSvc.Get(ctx, req.ChatID)
	if err != nil {
		return nil
	}
	return aiService.TurnsFromMessages(session.Messages)
}

// persistExchange appends the user prompt and the tutor answer to the session
// when the caller asked for it.
func (h *Handler) persistExchange(ctx context.Context, req ChatRequest, answer string) {
	if !req.Persist || req.ChatID == "" || h.chatSvc == nil {
		return
	}

	now := time.Now().UTC()
	exchange := []chat.Message{
		{Role: chat.RoleUser, Content: req.Prompt, Timestamp: now},
		{Role: chat.RoleAssistant, Content: answer, Timestamp: now},
	}
	if _, err := h.chatSvc.AppendMessages(ctx, req.ChatID, exchange...); err != nil {
		log.Warn().Err(err).Str("chat_id", req.ChatID).Msg("[stream] failed to persist exchange")
	}
}
