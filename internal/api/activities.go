package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/services/activities"
	"github.com/orgmgr/orgmgr/internal/storage"
)

type activityHandler struct {
	svc *activities.Service
}

// activityPayload keeps parent_id as raw JSON so a PATCH can distinguish
// "field absent" from an explicit null that detaches the activity.
type activityPayload struct {
	Name     *string         `json:"name"`
	ParentID json.RawMessage `json:"parent_id"`
}

func (p activityPayload) parent() (*string, bool, error) {
	if p.ParentID == nil {
		return nil, false, nil
	}
	if bytes.Equal(bytes.TrimSpace(p.ParentID), []byte("null")) {
		return nil, true, nil
	}
	var id string
	if err := json.Unmarshal(p.ParentID, &id); err != nil {
		return nil, false, errors.Validation("parent_id", "parent_id must be a string or null")
	}
	return &id, true, nil
}

func (h *activityHandler) register(g *gin.RouterGroup) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.put)
	g.PATCH("/:id", h.patch)
	g.DELETE("/:id", h.delete)
}

func (h *activityHandler) create(c *gin.Context) {
	var payload activityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	a := activity.Activity{}
	if payload.Name != nil {
		a.Name = *payload.Name
	}
	parent, _, err := payload.parent()
	if err != nil {
		respondError(c, err)
		return
	}
	a.ParentID = parent

	created, err := h.svc.Create(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *activityHandler) get(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *activityHandler) list(c *gin.Context) {
	p, err := parsePagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filter := storage.ActivityFilter{
		IDs:       queryList(c, "ids"),
		NameILike: c.Query("name_ilike"),
	}
	if raw, ok := c.GetQuery("parent_id"); ok {
		filter.ParentID = &raw
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []activity.Activity{}
	}
	respondPage(c, items, total, p)
}

func (h *activityHandler) put(c *gin.Context) {
	var payload activityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	a := activity.Activity{ID: c.Param("id")}
	if payload.Name != nil {
		a.Name = *payload.Name
	}
	parent, _, err := payload.parent()
	if err != nil {
		respondError(c, err)
		return
	}
	a.ParentID = parent

	updated, err := h.svc.Update(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *activityHandler) patch(c *gin.Context) {
	var payload activityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}

	a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if payload.Name != nil {
		a.Name = *payload.Name
	}
	parent, set, err := payload.parent()
	if err != nil {
		respondError(c, err)
		return
	}
	if set {
		a.ParentID = parent
	}

	updated, err := h.svc.Update(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *activityHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
