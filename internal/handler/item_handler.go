package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"driftwood/itemvault/internal/model"
	"driftwood/itemvault/internal/repository"
	"driftwood/itemvault/pkg/response"
)

type ItemHandler struct {
	items repository.Repository[model.Item]
}

func NewItemHandler(items repository.Repository[model.Item]) *ItemHandler {
	return &ItemHandler{items: items}
}

type CreateItemRequest struct {
	Name string `json:"name" binding:"required"`
	Age  int    `json:"age"`
}

func (h *ItemHandler) List(c *gin.Context) {
	items, err := h.items.Scan(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list items")
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.items.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, "failed to fetch item")
		return
	}
	if item == nil {
		response.NotFound(c, "item not found")
		return
	}
	response.Success(c, gin.H{"item": item})
}

// Create assigns the key here, not in the repository: key generation policy
// belongs to the caller.
func (h *ItemHandler) Create(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	item := model.Item{
		ID:   uuid.NewString(),
		Name: req.Name,
		Age:  req.Age,
	}
	if err := h.items.Create(c.Request.Context(), item); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			response.Conflict(c, "item already exists")
			return
		}
		response.InternalError(c, "failed to create item")
		return
	}
	response.Created(c, gin.H{"item_id": item.ID})
}

func (h *ItemHandler) Update(c *gin.Context) {
	var item model.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if item.ID != c.Param("id") {
		response.BadRequest(c, "id in path does not match id in item")
		return
	}

	if err := h.items.Update(c.Request.Context(), item); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "item not found")
			return
		}
		response.InternalError(c, "failed to update item")
		return
	}
	response.Success(c, nil)
}

// Delete tombstones the item, attributing the deletion to the caller.
func (h *ItemHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Unauthorized(c, "you are not authenticated")
		return
	}

	if err := h.items.SoftDelete(c.Request.Context(), c.Param("id"), actor); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "item not found")
			return
		}
		response.InternalError(c, "failed to delete item")
		return
	}
	response.Success(c, gin.H{"message": "item was successfully removed"})
}

// Deleted lists tombstoned items, optionally filtered by who deleted them.
func (h *ItemHandler) Deleted(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		items []model.Item
		err   error
	)
	if actor := c.Query("deleted_by"); actor != "" {
		items, err = h.items.DeletedItemsBy(ctx, actor)
	} else {
		items, err = h.items.DeletedItems(ctx)
	}
	if err != nil {
		response.InternalError(c, "failed to list deleted items")
		return
	}
	response.Success(c, gin.H{"items": items})
}
