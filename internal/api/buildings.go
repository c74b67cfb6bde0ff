package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/services/buildings"
	"github.com/orgmgr/orgmgr/internal/storage"
)

type buildingHandler struct {
	svc *buildings.Service
}

type buildingPayload struct {
	Address   *string  `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *buildingHandler) register(g *gin.RouterGroup) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.put)
	g.PATCH("/:id", h.patch)
	g.DELETE("/:id", h.delete)
}

func (h *buildingHandler) create(c *gin.Context) {
	var payload buildingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	b := building.Building{}
	applyBuildingPayload(&b, payload)

	created, err := h.svc.Create(c.Request.Context(), b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *buildingHandler) get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *buildingHandler) list(c *gin.Context) {
	p, err := parsePagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filter := storage.BuildingFilter{
		IDs:          queryList(c, "ids"),
		AddressILike: c.Query("address_ilike"),
	}
	for name, dst := range map[string]**float64{
		"latitude_ge":  &filter.LatitudeGE,
		"latitude_le":  &filter.LatitudeLE,
		"longitude_ge": &filter.LongitudeGE,
		"longitude_le": &filter.LongitudeLE,
	} {
		v, err := queryFloat(c, name)
		if err != nil {
			respondError(c, err)
			return
		}
		*dst = v
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []building.Building{}
	}
	respondPage(c, items, total, p)
}

func (h *buildingHandler) put(c *gin.Context) {
	var payload buildingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}
	b := building.Building{ID: c.Param("id")}
	applyBuildingPayload(&b, payload)

	updated, err := h.svc.Update(c.Request.Context(), b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// patch merges the supplied fields into the stored building.
func (h *buildingHandler) patch(c *gin.Context) {
	var payload buildingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errors.BadRequest("invalid request body"))
		return
	}

	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	applyBuildingPayload(&b, payload)

	updated, err := h.svc.Update(c.Request.Context(), b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *buildingHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func applyBuildingPayload(b *building.Building, p buildingPayload) {
	if p.Address != nil {
		b.Address = *p.Address
	}
	if p.Latitude != nil {
		b.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		b.Longitude = *p.Longitude
	}
}
