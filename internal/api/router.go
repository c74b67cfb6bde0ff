package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/orgmgr/orgmgr/internal/config"
	"github.com/orgmgr/orgmgr/internal/metrics"
	"github.com/orgmgr/orgmgr/internal/middleware"
	"github.com/orgmgr/orgmgr/internal/services/activities"
	"github.com/orgmgr/orgmgr/internal/services/buildings"
	"github.com/orgmgr/orgmgr/internal/services/organizations"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

// Deps carries everything the router needs. DB and Cache may be nil; the
// matching endpoints and middleware degrade gracefully.
type Deps struct {
	Config        *config.Config
	Log           *logger.Logger
	Metrics       *metrics.Metrics
	Cache         middleware.Cache
	DB            *sqlx.DB
	RateLimiter   *middleware.RateLimiter
	Buildings     *buildings.Service
	Activities    *activities.Service
	Organizations *organizations.Service
	Version       string
}

// New assembles the gin engine: middleware chain, operational endpoints, and
// the /v1 resource routes.
func New(d Deps) *gin.Engine {
	if d.Config.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(middleware.CORS(d.Config.Server.Origins))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Handler())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "orgmgr",
			"version": d.Version,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.DB.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "database"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.Auth(d.Config.Auth, d.Log))
	if d.Cache != nil {
		v1.Use(middleware.Idempotency(d.Cache, d.Config.Idempotency.TTL, d.Log))
	}

	(&buildingHandler{svc: d.Buildings}).register(v1.Group("/buildings"))
	(&activityHandler{svc: d.Activities}).register(v1.Group("/activities"))
	(&organizationHandler{svc: d.Organizations}).register(v1.Group("/organizations"))

	return r
}
