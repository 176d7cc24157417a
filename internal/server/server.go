package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/sirupsen/logrus"
)

type ServerType int

const (
	HTTP ServerType = iota
)

// A Server exposes an executor to remote schedulers.
type Server interface {
	Init(port int) error
	Handler() http.Handler
}

// NewServer creates a worker server of the passed type for exec and starts listening on port.
func NewServer(serverType ServerType, port int, exec executor.Executor, log *logrus.Entry) (Server, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	switch serverType {
	case HTTP:
		server := newHTTPServer(exec, log)
		return server, server.Init(port)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
