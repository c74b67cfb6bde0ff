// Package api exposes the versioned REST surface of the directory service.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/httputil"
	"github.com/orgmgr/orgmgr/internal/storage"
)

// Page is the list response envelope.
type Page struct {
	Items      interface{} `json:"items"`
	TotalItems int         `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

func respondPage(c *gin.Context, items interface{}, total int, p storage.Pagination) {
	p = p.Normalize()
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	c.JSON(http.StatusOK, Page{Items: items, TotalItems: total, TotalPages: pages})
}

func respondError(c *gin.Context, err error) {
	httputil.AbortWithError(c, err)
}

// parsePagination reads page/limit query params, defaulting out-of-range
// values.
func parsePagination(c *gin.Context) (storage.Pagination, error) {
	p := storage.Pagination{Page: 1, Limit: 10}
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return p, errors.Validation("page", "page must be a positive integer")
		}
		p.Page = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			return p, errors.Validation("limit", "limit must be between 1 and 100")
		}
		p.Limit = v
	}
	return p, nil
}

// queryList gathers a repeatable query param, splitting each value on commas.
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Validation(name, fmt.Sprintf("%s must be a number", name))
	}
	return &v, nil
}

// parseBBox parses "min_lat,min_lon;max_lat,max_lon".
func parseBBox(raw string) (*storage.BoundingBox, error) {
	corners := strings.Split(raw, ";")
	if len(corners) != 2 {
		return nil, errors.Validation("coords", "coords must be min_lat,min_lon;max_lat,max_lon")
	}
	min, err := parsePoint(corners[0])
	if err != nil {
		return nil, err
	}
	max, err := parsePoint(corners[1])
	if err != nil {
		return nil, err
	}
	if min[0] > max[0] || min[1] > max[1] {
		return nil, errors.Validation("coords", "bounding box corners are inverted")
	}
	return &storage.BoundingBox{MinLat: min[0], MinLon: min[1], MaxLat: max[0], MaxLon: max[1]}, nil
}

// parseRadius parses "lat,lon,meters".
func parseRadius(raw string) (*storage.RadiusSearch, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return nil, errors.Validation("radius", "radius must be lat,lon,meters")
	}
	vals := make([]float64, 3)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Validation("radius", "radius must be lat,lon,meters")
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return nil, errors.Validation("radius", "radius distance must be positive")
	}
	return &storage.RadiusSearch{Lat: vals[0], Lon: vals[1], Meters: vals[2]}, nil
}

func parsePoint(raw string) ([2]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return [2]float64{}, errors.Validation("coords", "each corner must be lat,lon")
	}
	var out [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [2]float64{}, errors.Validation("coords", "each corner must be lat,lon")
		}
		out[i] = v
	}
	return out, nil
}
