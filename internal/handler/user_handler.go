package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"driftwood/itemvault/internal/repository"
	"driftwood/itemvault/internal/service"
	"driftwood/itemvault/pkg/response"
)

type UserHandler struct {
	users service.UserService
}

func NewUserHandler(users service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateAdminStatusRequest struct {
	Admin *bool `json:"admin" binding:"required"`
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list users")
		return
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	response.Success(c, gin.H{"users": users})
}

func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.Create(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			response.Conflict(c, "user already exists")
			return
		}
		response.InternalError(c, "failed to create user")
		return
	}
	sanitized := *user
	sanitized.PasswordHash = ""
	response.Created(c, gin.H{"user": sanitized})
}

func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Unauthorized(c, "you are not authenticated")
		return
	}

	if err := h.users.SoftDelete(c.Request.Context(), c.Param("id"), actor); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.InternalError(c, "failed to delete user")
		return
	}
	response.Success(c, gin.H{"message": "user was successfully removed"})
}

func (h *UserHandler) UpdateAdminStatus(c *gin.Context) {
	var req UpdateAdminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	err := h.users.SetAdminStatus(c.Request.Context(), c.Param("id"), *req.Admin)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.InternalError(c, "failed to update admin status")
		return
	}
	response.Success(c, gin.H{"message": "admin status was successfully updated"})
}
