package debugview

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the board's snapshots and the metrics
type Server struct {
	board   *Board
	metrics *Metrics
	server  *http.Server
	logger  *zap.Logger
}

func NewServer(addr string, board *Board, metrics *Metrics) *Server {
	s := &Server{
		board:   board,
		metrics: metrics,
		logger:  zap.L().Named("debugview"),
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/agents", s.handleAgents)
	r.GET("/agents/:id", s.handleAgent)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Snapshots())
}

func (s *Server) handleAgent(c *gin.Context) {
	snap, ok := s.board.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such agent"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving debug view", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
