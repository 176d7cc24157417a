package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type httpServer struct {
	exec executor.Executor
	log  *logrus.Entry

	router *gin.Engine

	executions atomic.Int64
	running    atomic.Int64

	faultsMu sync.Mutex
	faults   *fault.Coverage // All faults found by this worker
}

func newHTTPServer(exec executor.Executor, log *logrus.Entry) *httpServer {
	h := &httpServer{
		exec:   exec,
		log:    log,
		faults: fault.NewCoverage(),
	}

	h.router = gin.Default()
	h.router.POST("/execute", h.postExecute)
	h.router.GET("/status", h.getStatus)

	return h
}

func (h *httpServer) Init(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return errors.Join(fmt.Errorf("failed to listen on port %d", port), err)
	}
	h.log.Infof("Worker listening on %s", listener.Addr())

	go func() {
		if err := http.Serve(listener, h.router); err != nil {
			h.log.Errorf("Worker stopped serving - %v", err)
		}
	}()
	return nil
}

func (h *httpServer) Handler() http.Handler {
	return h.router
}

func (h *httpServer) postExecute(c *gin.Context) {
	var req executor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request - %v", err)
		return
	}
	if req.Test == nil {
		c.String(http.StatusBadRequest, "request holds no test")
		return
	}

	id := uniuri.New()
	log := h.log.WithField("execution-id", id)
	log.Tracef("Executing test %s", req.Test.Fingerprint().Encoded()[:12])

	h.running.Add(1)
	set, err := h.exec.Execute(c.Request.Context(), req.Test, req.Aux())
	h.running.Add(-1)
	h.executions.Add(1)

	if err != nil {
		log.Warnf("Execution failed - %v", err)
		if errors.Is(err, executor.ErrInfrastructure) {
			c.String(http.StatusUnprocessableEntity, err.Error())
		} else {
			c.String(http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	if faults, ok := set[coverage.FaultsKey].(*fault.Coverage); ok {
		h.faultsMu.Lock()
		if err := h.faults.Merge(faults); err != nil {
			log.Errorf("Failed to record faults - %v", err)
		}
		h.faultsMu.Unlock()
	}

	c.JSON(http.StatusOK, set)
}

func (h *httpServer) getStatus(c *gin.Context) {
	h.faultsMu.Lock()
	faults := h.faults.Len()
	h.faultsMu.Unlock()

	c.JSON(http.StatusOK, executor.Status{
		Executions: h.executions.Load(),
		Running:    h.running.Load(),
		Faults:     faults,
	})
}
