package handler

import (
	"strconv"

	"pdf-qa/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

type QueryHandler struct {
	svc      *service.Service
	sessions *SessionManager
}

func NewQueryHandler(svc *service.Service, sessions *SessionManager) *QueryHandler {
	return &QueryHandler{svc: svc, sessions: sessions}
}

// HandleQuery answers the form field "query" from the session's documents
func (h *QueryHandler) HandleQuery(c *gin.Context) {
	state, unlock, err := h.sessions.LoadLocked(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer unlock()

	question := c.PostForm("query")
	answer, err := h.svc.Query(c.Request.Context(), state, question)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, "Query processed successfully", gin.H{
		"query":                question,
		"answer":               answer,
		"conversation_history": state.ConversationHistory,
	})
}

// HandleHistory lists past questions and answers, newest first
func (h *QueryHandler) HandleHistory(c *gin.Context) {
	state, err := h.sessions.Load(c)
	if err != nil {
		respondError(c, err)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	history := h.svc.History(state, limit, c.Query("search"))
	respondOK(c, "History retrieved", gin.H{"count": len(history), "history": history})
}
