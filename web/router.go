package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/burrowhq/burrow/activitypub"
	"github.com/burrowhq/burrow/db"
	"github.com/burrowhq/burrow/domain"
	"github.com/burrowhq/burrow/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

// Server wires the HTTP surface to the store and the federation engine.
type Server struct {
	store db.Store
	fed   *activitypub.Federation
	conf  *util.AppConfig
	log   *zap.SugaredLogger
}

func NewServer(store db.Store, fed *activitypub.Federation, conf *util.AppConfig, log *zap.SugaredLogger) *Server {
	return &Server{store: store, fed: fed, conf: conf, log: log}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter limits on inbox endpoints, plus a 1MB body cap
	inboxLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		s.renderWebfinger(c)
	})

	g.GET("/users/:name", func(c *gin.Context) {
		err, doc := s.GetActorDocument(domain.ActorPerson, c.Param("name"))
		renderJSON(c, err, doc)
	})
	g.GET("/c/:name", func(c *gin.Context) {
		err, doc := s.GetActorDocument(domain.ActorGroup, c.Param("name"))
		renderJSON(c, err, doc)
	})

	g.POST("/inbox", inboxLimiter, maxBodySize, func(c *gin.Context) {
		s.handleSharedInbox(c)
	})
	g.POST("/users/:name/inbox", inboxLimiter, maxBodySize, func(c *gin.Context) {
		s.handleActorInbox(c, domain.ActorPerson, c.Param("name"))
	})
	g.POST("/c/:name/inbox", inboxLimiter, maxBodySize, func(c *gin.Context) {
		s.handleActorInbox(c, domain.ActorGroup, c.Param("name"))
	})

	g.GET("/users/:name/outbox", func(c *gin.Context) {
		err, doc := s.GetOutbox(c.Param("name"), pageParam(c))
		renderJSON(c, err, doc)
	})
	g.GET("/users/:name/followers", func(c *gin.Context) {
		err, doc := s.GetFollowers(domain.ActorPerson, c.Param("name"), pageParam(c))
		renderJSON(c, err, doc)
	})
	g.GET("/users/:name/following", func(c *gin.Context) {
		err, doc := s.GetFollowing(domain.ActorPerson, c.Param("name"), pageParam(c))
		renderJSON(c, err, doc)
	})
	g.GET("/c/:name/followers", func(c *gin.Context) {
		err, doc := s.GetFollowers(domain.ActorGroup, c.Param("name"), pageParam(c))
		renderJSON(c, err, doc)
	})

	g.GET("/posts/:id", func(c *gin.Context) {
		postId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid post id"})
			return
		}
		err, doc := s.GetPostObject(postId)
		renderJSON(c, err, doc)
	})

	g.GET("/feed/:name", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		err, rss := s.GetRSS(c.Param("name"))
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
			return
		}
		c.Render(http.StatusOK, render.String{Format: "%s", Data: []any{rss}})
	})

	return g
}

// Run serves the router until the listener fails.
func (s *Server) Run() error {
	s.log.Infof("starting server on %s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort))
}

func (s *Server) renderWebfinger(c *gin.Context) {
	c.Header("Content-Type", "application/jrd+json; charset=utf-8")

	resource := c.Query("resource")
	if !strings.HasPrefix(resource, "acct:") {
		c.Render(http.StatusNotFound, render.String{Format: GetWebFingerNotFound()})
		return
	}
	name := strings.TrimPrefix(resource, "acct:")
	name = strings.TrimSuffix(name, "@"+s.conf.Conf.Domain)
	err, resp := s.GetWebfinger(name)
	if err != nil {
		c.Render(http.StatusNotFound, render.String{Format: GetWebFingerNotFound()})
		return
	}
	c.Render(http.StatusOK, render.String{Format: "%s", Data: []any{resp}})
}

func renderJSON(c *gin.Context, err error, doc string) {
	c.Header("Content-Type", activityJSON)
	if err != nil {
		c.Render(http.StatusNotFound, render.String{Format: doc})
		return
	}
	c.Render(http.StatusOK, render.String{Format: "%s", Data: []any{doc}})
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}
