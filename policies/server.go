package policies

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeu5/locomotion-rl/types"
	"go.uber.org/zap"
)

// Server exposes a local policy to other processes as POST /act
type Server struct {
	policy types.Policy
	server *http.Server
	logger *zap.Logger

	// policies are not required to be safe for concurrent use
	lock     *sync.Mutex
	requests int
}

func NewServer(addr string, policy types.Policy) *Server {
	s := &Server{
		policy: policy,
		logger: zap.L().Named("policy-server"),
		lock:   new(sync.Mutex),
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/act", s.handleAct)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler is the routing handler, for mounting or tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Requests() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.requests
}

func (s *Server) handleAct(c *gin.Context) {
	req := ActRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ActResponse{Error: "failed to unmarshal request"})
		return
	}
	s.lock.Lock()
	s.requests++
	action, err := s.policy.Act(c.Request.Context(), req.Observation)
	s.lock.Unlock()
	if err != nil {
		s.logger.Debug("policy failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ActResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ActResponse{Action: action})
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving policy", zap.String("addr", s.server.Addr))
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
