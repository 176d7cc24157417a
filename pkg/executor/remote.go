package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/testcase"
)

// Remote executes tests on a worker server reached over HTTP.
type Remote struct {
	URL    string       // Base URL of the worker, e.g. http://localhost:40000
	Client *http.Client // Client used for all requests; http.DefaultClient if nil

	Healthcheck HealthcheckConfig // Used by WaitReady
}

// NewRemote creates a client for the worker at url using the default healthcheck config.
func NewRemote(url string) *Remote {
	return &Remote{
		URL:         strings.TrimSuffix(url, "/"),
		Healthcheck: DefaultHealthcheckConfig(),
	}
}

func (r *Remote) client() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}
	return r.Client
}

func infrastructure(format string, args ...any) error {
	return errors.Join(ErrInfrastructure, fmt.Errorf(format, args...))
}

// Execute sends the test to the worker and returns the coverage it reported.
// All failures of the worker or the transport are infrastructure failures.
func (r *Remote) Execute(ctx context.Context, t *testcase.Test, aux Aux) (coverage.Set, error) {
	body, err := json.Marshal(Request{
		Test:       t,
		Dimensions: aux.Dimensions,
		BudgetMs:   aux.Budget.Milliseconds(),
	})
	if err != nil {
		return nil, infrastructure("failed to encode test - %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, infrastructure("failed to create request for worker %s - %v", r.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, infrastructure("worker %s unreachable - %v", r.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, infrastructure("worker %s answered %d: %s", r.URL, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	set := coverage.NewSet()
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return nil, infrastructure("failed to decode coverage from worker %s - %v", r.URL, err)
	}
	return set, nil
}

// Status queries the status of the worker.
func (r *Remote) Status(ctx context.Context) (Status, error) {
	var status Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL+"/status", nil)
	if err != nil {
		return status, infrastructure("failed to create request for worker %s - %v", r.URL, err)
	}
	res, err := r.client().Do(req)
	if err != nil {
		return status, infrastructure("worker %s unreachable - %v", r.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return status, infrastructure("worker %s answered %d", r.URL, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return status, infrastructure("failed to decode status of worker %s - %v", r.URL, err)
	}
	return status, nil
}
