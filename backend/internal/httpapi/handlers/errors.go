package handlers

import (
	"log"

	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/apperr"
)

// writeError renders err as {code, message} with the status its kind maps to.
func writeError(c *gin.Context, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.Internal || e.Kind == apperr.StoreUnavailable {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(e.Status, gin.H{"code": e.Code, "message": e.Message})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, apperr.NewValidation("VALIDATION", msg))
}
