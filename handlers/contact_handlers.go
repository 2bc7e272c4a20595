package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chatagent-backend/middleware"
	"chatagent-backend/models"
)

// ContactHandler lists and labels the chat participants an owner has seen
// across all their apps.
type ContactHandler struct {
	db *gorm.DB
}

func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{db: db}
}

// List returns the caller's contacts, optionally filtered by platform.
// GET /api/v1/contacts?platform=...&limit=...&offset=...
func (h *ContactHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	query := h.db.Where("owner_id = ?", c.GetString(middleware.CtxOwnerID))
	if platform := c.Query("platform"); platform != "" {
		query = query.Where("platform = ?", platform)
	}

	var contacts []models.Contact
	if err := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "contacts": contacts, "count": len(contacts)})
}

type updateContactRequest struct {
	DisplayName *string `json:"display_name"`
	Labels      *string `json:"labels"`
}

// Update renames or relabels one contact.
// PUT /api/v1/contacts/:id
func (h *ContactHandler) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid contact id"})
		return
	}

	var contact models.Contact
	err = h.db.Where("id = ? AND owner_id = ?", id, c.GetString(middleware.CtxOwnerID)).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "contact not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to load contact"})
		return
	}

	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Labels != nil {
		updates["labels"] = *req.Labels
	}
	if len(updates) > 0 {
		if err := h.db.Model(&contact).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to update contact"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "contact": contact})
}
