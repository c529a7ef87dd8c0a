package handler

import (
	"errors"
	"net/http"

	"pdf-qa/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// DataResponse is the envelope of every JSON reply
type DataResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

var clientErrors = []struct {
	err     error
	message string
}{
	{service.ErrNoFiles, "No files selected"},
	{service.ErrNoValidFiles, "No valid PDF files were found"},
	{service.ErrNoText, "No text could be extracted from the uploaded files"},
	{service.ErrNoQuery, "No query provided"},
	{service.ErrNotReady, "Please upload PDF files first"},
	{service.ErrIndexNotFound, "Error: Vector store not found. Please upload PDFs again."},
}

const internalErrorMessage = "Internal server error"

// errorStatus maps service errors to a status code and the message shown to clients
func errorStatus(err error) (int, string) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			return http.StatusBadRequest, ce.message
		}
	}
	return http.StatusInternalServerError, internalErrorMessage
}

func respondError(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.JSON(status, DataResponse{Success: false, Message: message})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, DataResponse{Success: true, Message: message, Data: data})
}
