package academia

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"academia-backend/lib/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/mem"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academia_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "academia_http_request_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	jobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academia_jobs_submitted_total",
		Help: "Scrape jobs submitted by kind and outcome of submission.",
	}, []string{"kind", "outcome"})
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type Server struct {
	service *Service
	issuer  token.Issuer
}

func NewServer(service *Service, issuer token.Issuer) *Server {
	return &Server{service: service, issuer: issuer}
}

// Router builds the gin engine with every route attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/login", s.handleLogin)
	api.POST("/scrape", s.submitHandler(KindScrape))
	api.POST("/scrape-timetable", s.submitHandler(KindTimetable))
	api.POST("/scrape-all", s.submitHandler(KindAll))
	api.POST("/refresh-data", s.handleRefresh)
	api.GET("/status/:id", s.handleStatus)
	api.GET("/scraper-health", s.handleScraperHealth)

	return router
}

type credentialsBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password"`
	Batch    string `json:"batch"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	minted, err := s.service.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	// a fresh login rides straight into a full scrape; the job reuses
	// the session cookies the login just persisted
	job, err := s.service.Submit(c.Request.Context(), RunRequest{
		Email:    body.Email,
		Password: body.Password,
		Batch:    body.Batch,
		Kind:     KindAll,
	})
	if errors.Is(err, ErrOwnerBusy) {
		jobsSubmitted.WithLabelValues(KindAll, "conflict").Inc()
	} else {
		jobsSubmitted.WithLabelValues(KindAll, "accepted").Inc()
	}
	c.JSON(http.StatusOK, gin.H{"token": minted, "job": job})
}

func (s *Server) submit(c *gin.Context, req RunRequest) {
	job, err := s.service.Submit(c.Request.Context(), req)
	if errors.Is(err, ErrOwnerBusy) {
		jobsSubmitted.WithLabelValues(req.Kind, "conflict").Inc()
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"job":   job,
		})
		return
	}
	jobsSubmitted.WithLabelValues(req.Kind, "accepted").Inc()
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) submitHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body credentialsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.submit(c, RunRequest{
			Email:    body.Email,
			Password: body.Password,
			Batch:    body.Batch,
			Kind:     kind,
		})
	}
}

// handleRefresh re-scrapes everything for the owner named by the bearer
// token, riding on stored session cookies instead of a password.
func (s *Server) handleRefresh(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	owner, err := s.issuer.Verify(header[len(prefix):])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	s.submit(c, RunRequest{Email: owner, Kind: KindAll})
}

func (s *Server) handleStatus(c *gin.Context) {
	job, ok := s.service.Jobs().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScraperHealth(c *gin.Context) {
	out := gin.H{
		"status":      "ok",
		"active_jobs": s.service.Jobs().ActiveCount(),
		"goroutines":  runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["memory_used_percent"] = vm.UsedPercent
	}
	c.JSON(http.StatusOK, out)
}
