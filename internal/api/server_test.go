package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/VAB-Companion/internal/api/handlers"
	"github.com/ramonehamilton/VAB-Companion/internal/assets"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
)

type fakeEngine struct {
	queryErr error
	result   *search.Result
	state    index.State
	stats    *index.Stats
	statsErr error
}

func (f *fakeEngine) Query(_ context.Context, req search.Request) (*search.Result, error) {
	if req.Prompt == "" {
		return nil, search.ErrEmptyPrompt
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.result, nil
}

func (f *fakeEngine) State() index.State { return f.state }

func (f *fakeEngine) Stats() (*index.Stats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

type fakeProductStore struct {
	records map[string]*assets.Asset
}

func (s *fakeProductStore) GetAsset(_ context.Context, sku string) (*assets.Asset, error) {
	return s.records[sku], nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) OpenProduct(_ context.Context, sku string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, sku)
	return nil
}

type updateControl struct {
	release chan struct{}
	err     error
}

func newTestServer(t *testing.T, engine *fakeEngine, store *fakeProductStore, opener *fakeOpener, update *updateControl) *Server {
	t.Helper()

	if engine == nil {
		engine = &fakeEngine{state: index.StateReady}
	}
	if store == nil {
		store = &fakeProductStore{records: map[string]*assets.Asset{}}
	}

	runner := func(ctx context.Context, full bool, progress func(done, total int)) (interface{}, error) {
		if update != nil {
			<-update.release
			if update.err != nil {
				return nil, update.err
			}
		}
		progress(1, 1)
		return map[string]int{"indexed": 1}, nil
	}

	var openerIface handlers.ProductOpener
	if opener != nil {
		openerIface = opener
	}

	server, err := NewServer(Config{
		Query:  engine,
		Store:  store,
		Update: runner,
		Opener: openerIface,
	})
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t, nil, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestQueryEndpoint(t *testing.T) {
	engine := &fakeEngine{
		state: index.StateReady,
		result: &search.Result{
			TotalHits: 1,
			Limit:     10,
			ModelID:   "mxbai-embed-large",
			Hits: []search.Hit{
				{Rank: 1, Distance: 0.25, Asset: &assets.Asset{SKU: "100", Name: "Cyber Alley"}},
			},
		},
	}
	server := newTestServer(t, engine, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/query",
		map[string]interface{}{"prompt": "cyberpunk alley"})
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data search.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Data.TotalHits)
	assert.Equal(t, "100", payload.Data.Hits[0].Asset.SKU)
}

func TestQueryValidationError(t *testing.T) {
	server := newTestServer(t, nil, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/query",
		map[string]interface{}{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryStaleIndexIsUnavailable(t *testing.T) {
	engine := &fakeEngine{state: index.StateStale, queryErr: index.ErrStale}
	server := newTestServer(t, engine, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/query",
		map[string]interface{}{"prompt": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryRequiresJSONContentType(t *testing.T) {
	server := newTestServer(t, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("prompt=x")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestInfoEndpoint(t *testing.T) {
	engine := &fakeEngine{
		state: index.StateReady,
		stats: &index.Stats{TotalAssets: 42, ModelID: "mxbai-embed-large"},
	}
	server := newTestServer(t, engine, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"READY"`)
	assert.Contains(t, rec.Body.String(), "42")
}

func TestInfoEndpointUninitialized(t *testing.T) {
	engine := &fakeEngine{state: index.StateUninitialized, statsErr: index.ErrNotReady}
	server := newTestServer(t, engine, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNINITIALIZED")
}

func TestGetProduct(t *testing.T) {
	store := &fakeProductStore{records: map[string]*assets.Asset{
		"100": {SKU: "100", Name: "Cyber Alley"},
	}}
	server := newTestServer(t, nil, store, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/products/100", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cyber Alley")

	rec = doJSON(t, server.Router(), http.MethodGet, "/api/v1/products/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenProduct(t *testing.T) {
	store := &fakeProductStore{records: map[string]*assets.Asset{
		"100": {SKU: "100", Name: "Cyber Alley"},
	}}
	opener := &fakeOpener{}
	server := newTestServer(t, nil, store, opener, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/products/100/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"100"}, opener.opened)
}

func TestOpenProductWithoutStudio(t *testing.T) {
	store := &fakeProductStore{records: map[string]*assets.Asset{
		"100": {SKU: "100"},
	}}
	server := newTestServer(t, nil, store, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/products/100/open", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateTaskLifecycle(t *testing.T) {
	server := newTestServer(t, nil, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/update",
		map[string]interface{}{"full": true})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	taskID := started.Data["task_id"]
	require.NotEmpty(t, taskID)

	// The runner finishes quickly; poll until the task completes.
	require.Eventually(t, func() bool {
		rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/update/"+taskID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var status struct {
			Data struct {
				Status string `json:"status"`
				Done   int    `json:"done"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Data.Status == "completed" && status.Data.Done == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateConflictWhileRunning(t *testing.T) {
	control := &updateControl{release: make(chan struct{})}
	server := newTestServer(t, nil, nil, nil, control)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/update", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, server.Router(), http.MethodPost, "/api/v1/update", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(control.release)
}

func TestUpdateFailureReported(t *testing.T) {
	control := &updateControl{release: make(chan struct{}), err: fmt.Errorf("export missing")}
	close(control.release)
	server := newTestServer(t, nil, nil, nil, control)

	rec := doJSON(t, server.Router(), http.MethodPost, "/api/v1/update", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	taskID := started.Data["task_id"]

	require.Eventually(t, func() bool {
		rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/update/"+taskID, nil)
		var status struct {
			Data struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Data.Status == "failed" && status.Data.Error == "export missing"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetUnknownTask(t *testing.T) {
	server := newTestServer(t, nil, nil, nil, nil)

	rec := doJSON(t, server.Router(), http.MethodGet, "/api/v1/update/no-such-task", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
