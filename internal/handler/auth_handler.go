package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clinic-scheduling-api/internal/auth"
	"clinic-scheduling-api/internal/model"
)

type credentialsResponse struct {
	User         userResponse `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Name           string     `json:"name" binding:"required,min=3"`
		Email          string     `json:"email" binding:"required,email"`
		Password       string     `json:"password" binding:"required,min=6"`
		Role           model.Role `json:"role" binding:"required"`
		Phone          string     `json:"phone"`
		Specialization string     `json:"specialization"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing or invalid fields"})
		return
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "role must be either doctor or patient"})
		return
	}
	if req.Role == model.RoleDoctor && strings.TrimSpace(req.Specialization) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "specialization is required for doctors"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	u := &model.User{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:   hash,
		Role:           req.Role,
		Phone:          req.Phone,
		Specialization: strings.TrimSpace(req.Specialization),
	}
	if err := h.users.CreateUser(c.Request.Context(), u); err != nil {
		h.respondErr(c, err)
		return
	}

	creds, err := h.issueCredentials(c, u)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": creds})
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing credentials"})
		return
	}

	u, err := h.users.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid email or password"})
		return
	}

	creds, err := h.issueCredentials(c, u)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": creds})
}

// POST /auth/refresh rotates the refresh token and mints a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "refreshToken is required"})
		return
	}

	ctx := c.Request.Context()
	rt, err := h.tokens.RefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if rt == nil || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired refresh token"})
		return
	}
	if rt.Revoked {
		// reuse of a rotated token: assume theft, revoke the family
		_ = h.tokens.RevokeAllRefreshTokens(ctx, rt.UserID)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired refresh token"})
		return
	}

	u, err := h.users.UserByID(ctx, rt.UserID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired refresh token"})
		return
	}

	newRaw, newHash, err := auth.GenerateRefreshToken()
	if err != nil {
		h.respondErr(c, err)
		return
	}
	newID := uuid.New().String()
	if err := h.tokens.RotateRefreshToken(ctx, rt.ID, newID, u.ID, newHash, time.Now().Add(h.refreshTTL)); err != nil {
		h.respondErr(c, err)
		return
	}

	tok, err := auth.MakeToken(u.ID, u.Role, h.secret, h.jwtTTL)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{
		"token":        tok,
		"refreshToken": newRaw,
	}})
}

// GET /auth/doctors
func (h *Handler) ListDoctors(c *gin.Context) {
	docs, err := h.users.ListDoctors(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	out := make([]userResponse, len(docs))
	for i := range docs {
		out[i] = toUserResponse(&docs[i])
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(out), "doctors": out})
}

// GET /auth, doctor only
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(out), "users": out})
}

// GET /auth/:id, doctor only
func (h *Handler) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}
	u, err := h.users.UserByID(c.Request.Context(), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user": toUserResponse(u)})
}

// PUT /auth/:id updates profile fields. Empty or absent fields keep
// their current value; email is immutable.
func (h *Handler) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}

	var req struct {
		Name           string `json:"name"`
		Role           string `json:"role"`
		Phone          string `json:"phone"`
		Specialization string `json:"specialization"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.Role != "" && !model.Role(req.Role).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "role must be either doctor or patient"})
		return
	}

	u, err := h.users.UserByID(c.Request.Context(), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}

	if v := strings.TrimSpace(req.Name); v != "" {
		u.Name = v
	}
	if req.Role != "" {
		u.Role = model.Role(req.Role)
	}
	if req.Phone != "" {
		u.Phone = req.Phone
	}
	if v := strings.TrimSpace(req.Specialization); v != "" {
		u.Specialization = v
	}

	if err := h.users.UpdateUser(c.Request.Context(), u); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user": toUserResponse(u)})
}

func (h *Handler) issueCredentials(c *gin.Context, u *model.User) (*credentialsResponse, error) {
	tok, err := auth.MakeToken(u.ID, u.Role, h.secret, h.jwtTTL)
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := h.tokens.CreateRefreshToken(c.Request.Context(), u.ID, hash, time.Now().Add(h.refreshTTL)); err != nil {
		return nil, err
	}
	return &credentialsResponse{User: toUserResponse(u), Token: tok, RefreshToken: raw}, nil
}
