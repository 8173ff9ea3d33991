package tutor

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stemforge/stem-forge/backend/internal/model/chat"
	"github.com/stemforge/stem-forge/backend/internal/model/subject"
	aiService "github.com/stemforge/stem-forge/backend/internal/service/ai"
	"github.com/stemforge/stem-forge/backend/pkg/utils"
)

// Handler 学习辅助功能的HTTP处理器
type Handler struct {
	aiSvc    *aiService.Service
	subjects subject.Store
	now      func() time.Time
}

// New 创建学习辅助处理器
func New(aiSvc *aiService.Service, subjects subject.Store) *Handler {
	return &Handler{
		aiSvc:    aiSvc,
		subjects: subjects,
		now:      time.Now,
	}
}

// RegisterRoutes 注册学习辅助相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ollama/status", h.handleStatus)
	r.Get("/subjects", h.handleListSubjects)

	r.Post("/flashcard/explain", h.handleExplainFlashcard)
	r.Post("/study/hints", h.handleStudyHints)
	r.Post("/concept/explain", h.handleExplainConcept)
	r.Post("/practice/generate", h.handleGeneratePractice)
	r.Post("/course/generate", h.handleGenerateCourse)
	r.Post("/lesson/generate", h.handleGenerateLesson)
}

func (h *Handler) timestamp() string {
	return chat.FormatTimestamp(h.now())
}

// decode 解析请求体并检查必填字段
func decode(w http.ResponseWriter, r *http.Request, dst any, required map[string]*string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	for name, value := range required {
		if strings.TrimSpace(*value) == "" {
			utils.RespondError(w, http.StatusBadRequest, name+" is required")
			return false
		}
	}
	return true
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.aiSvc.Status(r.Context())
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":           "OK",
		"message":          "STEM tutor backend is running",
		"ollama_connected": status.Connected,
		"model_available":  status.ModelAvailable,
	})
}

// handleStatus 返回推理后端状态
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.aiSvc.Status(r.Context()))
}

// handleListSubjects 列出所有学科
func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.subjects.List())
}

// handleExplainFlashcard 解释闪卡答案
func (h *Handler) handleExplainFlashcard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Subject  string `json:"subject"`
	}
	if !decode(w, r, &req, map[string]*string{"question": &req.Question, "answer": &req.Answer}) {
		return
	}

	explanation := h.aiSvc.ExplainFlashcard(r.Context(), req.Question, req.Answer, req.Subject)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"explanation": explanation,
		"timestamp":   h.timestamp(),
	})
}

// handleStudyHints 根据闪卡生成学习建议
func (h *Handler) handleStudyHints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flashcards []aiService.Flashcard `json:"flashcards"`
		Subject    string                `json:"subject"`
	}
	if !decode(w, r, &req, nil) {
		return
	}
	if len(req.Flashcards) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "Flashcards are required")
		return
	}

	hints := h.aiSvc.StudyHints(r.Context(), req.Flashcards, req.Subject)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"hints":     hints,
		"timestamp": h.timestamp(),
	})
}

// handleExplainConcept 简明解释概念
func (h *Handler) handleExplainConcept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Concept    string `json:"concept"`
		Subject    string `json:"subject"`
		Difficulty string `json:"difficulty"`
	}
	if !decode(w, r, &req, map[string]*string{"concept": &req.Concept}) {
		return
	}

	explanation := h.aiSvc.ExplainConcept(r.Context(), req.Concept, req.Subject, req.Difficulty)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"explanation": explanation,
		"timestamp":   h.timestamp(),
	})
}

// handleGeneratePractice 生成练习题
func (h *Handler) handleGeneratePractice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic   string `json:"topic"`
		Subject string `json:"subject"`
		Count   int    `json:"count"`
	}
	if !decode(w, r, &req, map[string]*string{"topic": &req.Topic}) {
		return
	}

	problems := h.aiSvc.PracticeProblems(r.Context(), req.Topic, req.Subject, req.Count)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"problems":  problems,
		"timestamp": h.timestamp(),
	})
}

// handleGenerateCourse 生成课程大纲
func (h *Handler) handleGenerateCourse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic        string `json:"topic"`
		Subject      string `json:"subject"`
		Difficulty   string `json:"difficulty"`
		LessonsCount int    `json:"lessons_count"`
	}
	if !decode(w, r, &req, map[string]*string{"topic": &req.Topic}) {
		return
	}

	course := h.aiSvc.CourseStructure(r.Context(), req.Topic, req.Subject, req.Difficulty, req.LessonsCount)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"course":    course,
		"timestamp": h.timestamp(),
	})
}

// handleGenerateLesson 生成单节课内容
func (h *Handler) handleGenerateLesson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonTitle  string `json:"lesson_title"`
		CourseTopic  string `json:"course_topic"`
		Subject      string `json:"subject"`
		Difficulty   string `json:"difficulty"`
		LessonNumber int    `json:"lesson_number"`
	}
	if !decode(w, r, &req, map[string]*string{"lesson_title": &req.LessonTitle, "course_topic": &req.CourseTopic}) {
		return
	}

	content := h.aiSvc.LessonContent(r.Context(), req.LessonTitle, req.CourseTopic, req.Subject, req.Difficulty, req.LessonNumber)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"content":   content,
		"timestamp": h.timestamp(),
	})
}
