// Package server exposes the article views and favorites export over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AbbuRehan-SD/news-summarizer/internal/export"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

// Source produces the article views served by the routes.
type Source interface {
	Label() string
	Regional(ctx context.Context, page int) []news.Article
	Headlines(ctx context.Context, page int) []news.Article
	Search(ctx context.Context, term string, page int) []news.Article
}

type pageResponse struct {
	Articles []news.Article `json:"articles"`
	Page     int            `json:"page"`
	Category string         `json:"category"`
	Query    string         `json:"query"`
}

type Server struct {
	engine *gin.Engine
	source Source
	logger *slog.Logger
}

func New(source Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: gin.New(), source: source, logger: logger}
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/india")
	})
	s.engine.GET("/india", s.regional)
	s.engine.GET("/world", s.world)
	s.engine.GET("/search", s.search)

	fav := s.engine.Group("/export/favorites")
	fav.POST("/csv", s.exportFavorites("favorites.csv", "text/csv", export.CSV))
	fav.POST("/xlsx", s.exportFavorites("favorites.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.XLSX))
	fav.POST("/pdf", s.exportFavorites("favorites.pdf", "application/pdf", export.PDF))
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) regional(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	s.respond(c, s.source.Regional(c.Request.Context(), page), page, s.source.Label(), "")
}

func (s *Server) world(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	query := c.Query("query")
	var articles []news.Article
	if query != "" {
		articles = s.source.Search(c.Request.Context(), query, page)
	} else {
		articles = s.source.Headlines(c.Request.Context(), page)
	}
	s.respond(c, articles, page, "World", query)
}

func (s *Server) search(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	query := c.Query("q")
	s.respond(c, s.source.Search(c.Request.Context(), query, page), page, "Search", query)
}

func (s *Server) respond(c *gin.Context, articles []news.Article, page int, category, query string) {
	if articles == nil {
		articles = []news.Article{}
	}
	c.JSON(http.StatusOK, pageResponse{
		Articles: articles,
		Page:     page,
		Category: category,
		Query:    query,
	})
}

func pageParam(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return 0, false
	}
	return page, true
}

func (s *Server) exportFavorites(filename, contentType string, render func(io.Writer, []news.Article) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		articles, err := export.Decode(c.Request.Body)
		if errors.Is(err, export.ErrNoFavorites) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No favorites provided"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "favorites must be a JSON list of articles"})
			return
		}

		var buf bytes.Buffer
		if err := render(&buf, articles); err != nil {
			s.logger.ErrorContext(c.Request.Context(), "rendering favorites", "file", filename, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}
