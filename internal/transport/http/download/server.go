package downloadhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"candlesync/internal/download"
	"candlesync/internal/market"
	"candlesync/internal/store"
	"candlesync/internal/store/gormstore"

	"github.com/gin-gonic/gin"
)

// Submitter 接收异步下载任务。
type Submitter interface {
	Submit(req download.Request) (string, error)
}

// Journal 提供任务记录查询。
type Journal interface {
	List(ctx context.Context, limit int) ([]gormstore.DownloadRecord, error)
	Get(ctx context.Context, id string) (gormstore.DownloadRecord, error)
}

// Server 提供下载任务与序列查询的 HTTP API。
type Server struct {
	addr    string
	jobs    Submitter
	journal Journal
	series  store.SeriesStore
	router  *gin.Engine
}

// Config 描述 HTTP Server 的依赖；Journal 可为空。
type Config struct {
	Addr    string
	Jobs    Submitter
	Journal Journal
	Series  store.SeriesStore
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("submitter 不能为空")
	}
	if cfg.Series == nil {
		cfg.Series = store.Nop{}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		jobs:    cfg.Jobs,
		journal: cfg.Journal,
		series:  cfg.Series,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

// Handler 暴露路由，便于测试。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := s.router.Group("/api")
	api.POST("/downloads", s.handleSubmit)
	api.GET("/downloads", s.handleList)
	api.GET("/downloads/:id", s.handleDetail)
	api.GET("/series", s.handleSeries)
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req struct {
		Market    string `json:"market" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		Since     int64  `json:"since"`
		Limit     int    `json:"limit" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.jobs.Submit(download.Request{
		Market:    req.Market,
		Timeframe: req.Timeframe,
		Since:     req.Since,
		Limit:     req.Limit,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": id})
}

func (s *Server) handleList(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := s.journal.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (s *Server) handleDetail(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	rec, err := s.journal.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gormstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": rec})
}

func (s *Server) handleSeries(c *gin.Context) {
	since, err := strconv.ParseInt(c.Query("since"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since 必须为整数"})
		return
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为整数"})
		return
	}
	tf, err := market.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := store.Key{Market: c.Query("market"), Timeframe: tf.Key, Since: since, Limit: limit}
	if err := key.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	series, err := s.series.Load(c.Request.Context(), key)
	if errors.Is(err, store.ErrCacheMiss) {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not downloaded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key.String(), "count": series.Len(), "series": series})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
