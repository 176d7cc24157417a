package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worker(t *testing.T, l *executor.Local) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var req executor.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		set, err := l.Execute(r.Context(), req.Test, req.Aux())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(set)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executor.Status{Executions: 3})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRemoteExecute(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)
	server := worker(t, l)
	remote := executor.NewRemote(server.URL)

	test := testcase.New([]testcase.Operation{
		newObject("Calculator", 0),
		constant("int", 0, 0),
		invoke(nil, ref("Calculator", 0), "SutMethod", *ref("int", 0)),
	}, nil)

	local, err := l.Execute(context.Background(), test, executor.Aux{})
	require.NoError(t, err)
	set, err := remote.Execute(context.Background(), test, executor.Aux{})
	require.NoError(t, err)

	assert.Equal(t, local.Keys(), set.Keys())
	assert.True(t, set.Contains(local))
	assert.True(t, local.Contains(set))
	require.Len(t, faultsOf(set), 1)
	assert.Equal(t, []string{"divide", "helper", "SutMethod"}, functions(faultsOf(set)[0].Trace))
	assert.Equal(t, fault.UnexpectedException, faultsOf(set)[0].Kind)
}

func TestRemoteFailuresAreInfrastructureFailures(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)
	server := worker(t, l)

	t.Run("rejected test", func(t *testing.T) {
		test := testcase.New([]testcase.Operation{
			testcase.CreateObject{Result: ref("Missing", 0), Class: "Missing", Constructor: "New"},
		}, nil)
		_, err := executor.NewRemote(server.URL).Execute(context.Background(), test, executor.Aux{})
		assert.ErrorIs(t, err, executor.ErrInfrastructure)
	})

	t.Run("unreachable worker", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()
		_, err := executor.NewRemote(closed.URL).Execute(context.Background(), testcase.New(nil, nil), executor.Aux{})
		assert.ErrorIs(t, err, executor.ErrInfrastructure)
	})

	t.Run("garbage", func(t *testing.T) {
		garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{\"branch\": {\"kind\": \"unknown\"}}"))
		}))
		defer garbage.Close()
		_, err := executor.NewRemote(garbage.URL).Execute(context.Background(), testcase.New(nil, nil), executor.Aux{})
		assert.ErrorIs(t, err, executor.ErrInfrastructure)
	})
}

func TestWaitReady(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(executor.Status{Executions: 7})
	}))
	defer server.Close()

	remote := executor.NewRemote(server.URL)
	remote.Healthcheck = executor.HealthcheckConfig{
		Retries:          5,
		Backoff:          time.Millisecond,
		BackoffIncrement: time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
	}

	status, err := remote.WaitReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), status.Executions)
	assert.Equal(t, int32(3), calls.Load())

	remote.Healthcheck.Retries = 1
	calls.Store(-10)
	_, err = remote.WaitReady(context.Background())
	assert.ErrorIs(t, err, executor.ErrInfrastructure)
}
