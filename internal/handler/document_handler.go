package handler

import (
	"errors"
	"fmt"
	"net/http"

	"pdf-qa/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const uploadField = "pdf_files"

type DocumentHandler struct {
	svc      *service.Service
	sessions *SessionManager
}

func NewDocumentHandler(svc *service.Service, sessions *SessionManager) *DocumentHandler {
	return &DocumentHandler{svc: svc, sessions: sessions}
}

// HandleUpload indexes the PDFs of a multipart upload for the caller's session
func (h *DocumentHandler) HandleUpload(c *gin.Context) {
	state, unlock, err := h.sessions.LoadLocked(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer unlock()

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, DataResponse{Success: false, Message: "File too large"})
			return
		}
		log.Debug().Err(err).Msg("Request has no multipart form")
		respondError(c, service.ErrNoFiles)
		return
	}

	headers := form.File[uploadField]
	uploads := make([]service.Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			respondError(c, fmt.Errorf("failed to open upload %s: %w", header.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Filename: header.Filename, Content: f})
	}

	names, err := h.svc.Upload(c.Request.Context(), state, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, fmt.Sprintf("Successfully processed %d PDF files", len(names)), gin.H{"filenames": names})
}

// HandleClear forgets the session's documents and conversation
func (h *DocumentHandler) HandleClear(c *gin.Context) {
	state, unlock, err := h.sessions.LoadLocked(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer unlock()

	h.svc.Clear(c.Request.Context(), state)
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "All data has been cleared", nil)
}

// HandleDelete removes one document and re-indexes the rest of the session
func (h *DocumentHandler) HandleDelete(c *gin.Context) {
	state, unlock, err := h.sessions.LoadLocked(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer unlock()

	if err := h.svc.Remove(c.Request.Context(), state, c.Param("filename")); err != nil {
		if errors.Is(err, service.ErrUnknownFile) {
			c.JSON(http.StatusNotFound, DataResponse{Success: false, Message: "File not found"})
			return
		}
		respondError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Document deleted", gin.H{"filenames": state.Filenames})
}

func (h *DocumentHandler) HandleList(c *gin.Context) {
	state, err := h.sessions.Load(c)
	if err != nil {
		respondError(c, err)
		return
	}
	docs := h.svc.Documents(state)
	respondOK(c, "Documents retrieved", gin.H{"count": len(docs), "documents": docs})
}

// ServeDocument sends back a file the session uploaded
func (h *DocumentHandler) ServeDocument(c *gin.Context) {
	state, err := h.sessions.Load(c)
	if err != nil {
		respondError(c, err)
		return
	}

	path, err := h.svc.DocumentPath(state, c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, DataResponse{Success: false, Message: "File not found"})
		return
	}
	c.File(path)
}
