package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/domain/organization"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/services/organizations"
	"github.com/orgmgr/orgmgr/internal/storage"
)

type organizationHandler struct {
	svc *organizations.Service
}

type organizationPayload struct {
	Name         *string   `json:"name"`
	BuildingID   *string   `json:"building_id"`
	PhoneNumbers *[]string `json:"phone_numbers"`
	ActivityIDs  *[]string `json:"activity_ids"`
}

func (h *organizationHandler) register(g *gin.RouterGroup) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.put)
	g.PATCH("/:id", h.patch)
	g.DELETE("/:id", h.delete)
}

func (h *organizationHandler) create(c *gin.Context) {
	var payload organizationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	o := organization.Organization{}
	applyOrganizationPayload(&o, payload)

	created, err := h.svc.Create(c.Request.Context(), o)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *organizationHandler) get(c *gin.Context) {
	o, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *organizationHandler) list(c *gin.Context) {
	p, err := parsePagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filter := storage.OrganizationFilter{
		IDs:                     queryList(c, "ids"),
		BuildingIDs:             queryList(c, "building_ids"),
		NameILike:               c.Query("name_ilike"),
		ActivityIDs:             queryList(c, "activity_ids"),
		ActivityIDsWithChildren: queryList(c, "activity_ids_with_children"),
	}
	if raw := c.Query("coords"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.BBox = bbox
	}
	if raw := c.Query("radius"); raw != "" {
		radius, err := parseRadius(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Radius = radius
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []organization.Organization{}
	}
	respondPage(c, items, total, p)
}

func (h *organizationHandler) put(c *gin.Context) {
	var payload organizationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	o := organization.Organization{ID: c.Param("id")}
	applyOrganizationPayload(&o, payload)

	updated, err := h.svc.Update(c.Request.Context(), o)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *organizationHandler) patch(c *gin.Context) {
	var payload organizationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}

	o, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	applyOrganizationPayload(&o, payload)

	updated, err := h.svc.Update(c.Request.Context(), o)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *organizationHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func applyOrganizationPayload(o *organization.Organization, p organizationPayload) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.BuildingID != nil {
		o.BuildingID = *p.BuildingID
	}
	if p.PhoneNumbers != nil {
		o.PhoneNumbers = *p.PhoneNumbers
	}
	if p.ActivityIDs != nil {
		o.ActivityIDs = *p.ActivityIDs
	}
}
