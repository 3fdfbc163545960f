// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/seo-maskinen/backend/crawler"
	"github.com/seo-maskinen/backend/logging"
	"github.com/seo-maskinen/backend/metrics"
	"github.com/seo-maskinen/backend/middleware"
	"github.com/seo-maskinen/backend/report"
	"github.com/seo-maskinen/backend/service"
	"github.com/seo-maskinen/backend/store"
)

const (
	DefaultAnalysisTimeout = 120 * time.Second
	exportLimit            = 500
	xlsxContentType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Analyzer interface {
	Analyze(ctx context.Context, req service.Request) (*service.Result, error)
}

type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, userID, id string) (*store.Analysis, error)
	List(ctx context.Context, userID string, opts store.ListOptions) ([]store.Analysis, int64, error)
	Recent(ctx context.Context, userID string, limit int) ([]store.Analysis, error)
}

type Statistics interface {
	Summary(detailed bool) map[string]interface{}
}

type BreakerStates interface {
	States() map[string]string
}

// Handlers holds what the routes need. Auth and Quota guard the user routes.
type Handlers struct {
	Analyzer        Analyzer
	Store           Store
	Stats           Statistics
	Breakers        BreakerStates
	Auth            gin.HandlerFunc
	Quota           gin.HandlerFunc
	DevMode         bool
	AnalysisTimeout time.Duration

	started time.Time
}

// Register mounts every route on r
func (h *Handlers) Register(r *gin.Engine) {
	h.started = time.Now()
	if h.AnalysisTimeout <= 0 {
		h.AnalysisTimeout = DefaultAnalysisTimeout
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/statistics", h.statistics)

	user := api.Group("")
	if h.Auth != nil {
		user.Use(h.Auth)
	}
	analyze := []gin.HandlerFunc{h.analyze}
	if h.Quota != nil {
		analyze = append([]gin.HandlerFunc{h.Quota}, analyze...)
	}
	user.POST("/analyze", analyze...)
	user.GET("/analyses", h.listAnalyses)
	user.GET("/analyses/export", h.exportAnalyses)
	user.GET("/analyses/:id", h.getAnalysis)
}

func (h *Handlers) health(c *gin.Context) {
	status := "ok"
	database := "ok"
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			logging.FromContext(c.Request.Context()).Warn("database ping failed", "error", err)
			status = "degraded"
			database = "unavailable"
		}
	}

	breakers := map[string]string{}
	if h.Breakers != nil {
		breakers = h.Breakers.States()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"uptime":   math.Round(time.Since(h.started).Seconds()),
		"database": database,
		"breakers": breakers,
	})
}

func (h *Handlers) statistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.Stats.Summary(h.DevMode)})
}

type analyzeRequest struct {
	URL          string `json:"url" binding:"required"`
	Keyword      string `json:"keyword" binding:"max=100"`
	Mode         string `json:"mode" binding:"omitempty,oneof=heuristic ai"`
	BusinessType string `json:"businessType" binding:"max=100"`
	Location     string `json:"location" binding:"max=100"`
}

// bindingMessage turns a binding failure into the message shown to the user
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgInvalidBody
	}
	switch verrs[0].Field() {
	case "URL":
		return msgURLRequired
	case "Keyword":
		return msgKeywordLength
	case "Mode":
		return msgInvalidMode
	}
	return msgInvalidBody
}

func (h *Handlers) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, CodeValidation, bindingMessage(err))
		return
	}

	// the url tag would reject bare hosts like "example.se"
	req.URL = strings.TrimSpace(req.URL)
	if _, err := crawler.NormalizeURL(req.URL); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, CodeValidation, msgInvalidURL)
		return
	}
	mode := service.ModeHeuristic
	if req.Mode != "" {
		mode = service.Mode(req.Mode)
	}

	user, _ := middleware.GetUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.AnalysisTimeout)
	defer cancel()

	res, err := h.Analyzer.Analyze(ctx, service.Request{
		UserID:       user.ID,
		URL:          req.URL,
		Keyword:      strings.TrimSpace(req.Keyword),
		Mode:         mode,
		BusinessType: strings.TrimSpace(req.BusinessType),
		Location:     strings.TrimSpace(req.Location),
	})
	if err != nil {
		f := classify(err)
		if f.report {
			middleware.CaptureError(c, err)
		}
		middleware.AbortWithError(c, f.status, f.code, f.message)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

func (h *Handlers) listAnalyses(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	opts := store.ListOptions{Page: page, Size: size, Status: store.Status(c.Query("status"))}

	rows, total, err := h.Store.List(c.Request.Context(), user.ID, opts)
	if err != nil {
		h.databaseError(c, err)
		return
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"analyses": rows,
			"pagination": gin.H{
				"page":  page,
				"size":  size,
				"total": total,
				"pages": (total + int64(size) - 1) / int64(size),
			},
		},
	})
}

func (h *Handlers) getAnalysis(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	row, err := h.Store.Get(c.Request.Context(), user.ID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		middleware.AbortWithError(c, http.StatusNotFound, CodeNotFound, msgNotFound)
		return
	}
	if err != nil {
		h.databaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": row})
}

func (h *Handlers) exportAnalyses(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	rows, err := h.Store.Recent(c.Request.Context(), user.ID, exportLimit)
	if err != nil {
		h.databaseError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteAnalyses(&buf, rows); err != nil {
		logging.FromContext(c.Request.Context()).Error("export failed", "error", err)
		middleware.CaptureError(c, err)
		middleware.AbortWithError(c, http.StatusInternalServerError, CodeUnknown, service.MsgUnknown)
		return
	}

	filename := fmt.Sprintf("seo-analyser-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handlers) databaseError(c *gin.Context, err error) {
	logging.FromContext(c.Request.Context()).Error("database query failed", "error", err)
	middleware.CaptureError(c, err)
	middleware.AbortWithError(c, http.StatusInternalServerError, CodeDatabase, msgDatabase)
}
