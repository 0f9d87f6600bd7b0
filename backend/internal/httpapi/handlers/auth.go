package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/authservice"
	"codeweave/backend/internal/httpapi/middleware"
)

type AuthHandler struct {
	svc *authservice.Service
}

func NewAuthHandler(svc *authservice.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Username   string `json:"username"`
	Type       string `json:"type"`
}

type loginReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// googleReq takes both the current field names and the older token/googleId pair.
type googleReq struct {
	ExternalToken string `json:"externalToken"`
	Token         string `json:"token"`
	ExternalID    string `json:"externalId"`
	GoogleID      string `json:"googleId"`
	Email         string `json:"email"`
	Name          string `json:"name"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	u, err := h.svc.Register(c.Request.Context(), authservice.RegisterInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Username:   req.Username,
		Type:       req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "userId": u.ID})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *AuthHandler) Google(c *gin.Context) {
	var req googleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	sess, err := h.svc.LoginWithExternalProvider(c.Request.Context(), authservice.ExternalLogin{
		Token:      firstNonEmpty(req.ExternalToken, req.Token),
		ExternalID: firstNonEmpty(req.ExternalID, req.GoogleID),
		Email:      req.Email,
		Name:       req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Me echoes the caller's identity; it sits behind AuthMiddleware.
func (h *AuthHandler) Me(c *gin.Context) {
	resp := gin.H{
		"userId":   c.GetString(middleware.CtxUserID),
		"username": c.GetString(middleware.CtxUsername),
	}
	if v, ok := c.Get(middleware.CtxClaims); ok {
		if claims, ok := v.(*authservice.Claims); ok && claims.ExpiresAt != nil {
			resp["expiresAt"] = claims.ExpiresAt.Time
		}
	}
	c.JSON(http.StatusOK, resp)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
