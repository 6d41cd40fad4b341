package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerRequiresHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.ErrorContains(t, err, "no handlers")

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskConsolidateRun}},
	})
	require.Error(t, err)
}

func TestServerConfigDefaults(t *testing.T) {
	cfg := serverConfig(WorkerConfig{}, nil)
	require.Equal(t, 5, cfg.Concurrency)
	require.Equal(t, map[string]int{QueueDefault: 1}, cfg.Queues)
	require.NotNil(t, cfg.ErrorHandler)

	cfg = serverConfig(WorkerConfig{Concurrency: 2, Queue: "consol"}, nil)
	require.Equal(t, 2, cfg.Concurrency)
	require.Equal(t, map[string]int{"consol": 1}, cfg.Queues)
}

func TestRunNilWorker(t *testing.T) {
	var w *Worker
	require.Error(t, w.Run(context.Background()))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil, "").MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}`, rr.Body.String())
}
