package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// LanguageLister lists every language some provider supports.
type LanguageLister interface {
	Languages() []domain.LanguageInfo
}

// LanguageHandler handles language listing requests.
type LanguageHandler struct {
	languages LanguageLister
}

// NewLanguageHandler creates a new LanguageHandler.
func NewLanguageHandler(languages LanguageLister) *LanguageHandler {
	return &LanguageHandler{languages: languages}
}

// List handles GET /api/v1/languages
func (h *LanguageHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages": h.languages.Languages(),
	})
}
