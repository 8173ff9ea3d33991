package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
	chatService "github.com/stemforge/stem-forge/backend/internal/service/chat"
	"github.com/stemforge/stem-forge/backend/pkg/utils"
)

// Handler 聊天会话存储的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chats", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Get("/{id}", h.handleGetSession)
		r.Put("/{id}", h.handleUpdateSession)
		r.Delete("/{id}", h.handleDeleteSession)
		r.Post("/{id}/messages", h.handleAppendMessage)
	})
}

// messagePayload 兼容旧客户端使用 type 字段表示角色
type messagePayload struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (p messagePayload) toMessage() (chat.Message, error) {
	raw := p.Role
	if raw == "" {
		raw = p.Type
	}
	role, ok := chat.ParseRole(raw)
	if !ok {
		return chat.Message{}, errors.Errorf("unsupported role %q", raw)
	}

	ts, err := chat.ParseTimestamp(p.Timestamp)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "invalid timestamp")
	}

	return chat.Message{
		ID:        p.ID,
		Role:      role,
		Content:   p.Content,
		Timestamp: ts,
	}, nil
}

func toMessages(payloads []messagePayload) ([]chat.Message, error) {
	messages := make([]chat.Message, 0, len(payloads))
	for _, p := range payloads {
		msg, err := p.toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// handleListSessions 列出所有会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.List(r.Context()))
}

// handleGetSession 获取单个会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID       string           `json:"id"`
		Name     string           `json:"name"`
		Messages []messagePayload `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages, err := toMessages(payload.Messages)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.Create(r.Context(), chat.Session{
		ID:       payload.ID,
		Name:     payload.Name,
		Messages: messages,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleUpdateSession 更新会话名称或消息列表
func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     *string           `json:"name"`
		Messages *[]messagePayload `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := chat.Patch{Name: payload.Name}
	if payload.Messages != nil {
		messages, err := toMessages(*payload.Messages)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Messages = &messages
	}

	session, err := h.chatSvc.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	removed, err := h.chatSvc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !removed {
		utils.RespondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted successfully"})
}

// handleAppendMessage 向会话追加一条消息
func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	message, err := payload.toMessage()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.chatSvc.AppendMessage(r.Context(), chi.URLParam(r, "id"), message)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// respondServiceError 将存储层错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, chatService.ErrIDRequired),
		errors.Is(err, chatService.ErrInvalidMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSessionExists):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("chat store request failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to persist chats")
	}
}
