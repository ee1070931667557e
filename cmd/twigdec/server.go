package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"

	"github.com/ugparu/twig/metrics"
	"github.com/ugparu/twig/utils/logger"
)

const shutdownTimeout = 5 * time.Second

func newRouter(m *metrics.Metrics, st *status) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	pprof.Register(r)

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, st.get())
	})
	return r
}

func serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: shutdownTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(tag, "HTTP server: %v", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warningf(tag, "HTTP shutdown: %v", err)
	}
}
