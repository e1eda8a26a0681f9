package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/middleware"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

func idParam(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	return id, nil
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
