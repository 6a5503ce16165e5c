package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/models"
	"github.com/lookup-tracker/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	submitID  string
	submitErr error
	result    json.RawMessage
	resultErr error
	lastReq   string
	lastArgs  map[string]string
}

func (f *fakeTracker) Submit(ctx context.Context, params map[string]string, requester string) (string, error) {
	f.lastReq = requester
	f.lastArgs = params
	return f.submitID, f.submitErr
}

func (f *fakeTracker) CheckResult(ctx context.Context, searchID string) (json.RawMessage, error) {
	return f.result, f.resultErr
}

type fakeBalance struct {
	result *adapter.BalanceResult
	err    error
}

func (f *fakeBalance) CheckBalance(ctx context.Context) (*adapter.BalanceResult, error) {
	return f.result, f.err
}

type fakeJobs struct {
	job      *models.LookupJob
	getErr   error
	purged   int64
	purgeErr error
	cutoff   time.Time
}

func (f *fakeJobs) GetByID(ctx context.Context, searchID string) (*models.LookupJob, error) {
	return f.job, f.getErr
}

func (f *fakeJobs) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.purged, f.purgeErr
}

func testServer(tracker *fakeTracker, balance *fakeBalance, jobs *fakeJobs) *Server {
	if tracker == nil {
		tracker = &fakeTracker{}
	}
	if balance == nil {
		balance = &fakeBalance{}
	}
	if jobs == nil {
		jobs = &fakeJobs{}
	}
	return NewServer(&ServerConfig{Host: "127.0.0.1", Port: "0"}, tracker, balance, jobs)
}

func submitBody(t *testing.T, requester string, params map[string]string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(SubmitLookupRequest{Requester: requester, Params: params})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func personParams() map[string]string {
	return map[string]string{
		"firstname": "John",
		"lastname":  "Doe",
		"dob":       "1980-01-01",
		"address":   "1 Main St",
		"city":      "Springfield",
		"state":     "IL",
		"zip":       "62701",
	}
}

func TestSubmitLookupAccepted(t *testing.T) {
	tracker := &fakeTracker{submitID: "100"}
	server := testServer(tracker, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", personParams()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitLookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.SearchID)
	assert.Equal(t, "100", *resp.SearchID)

	assert.Equal(t, "chat-1", tracker.lastReq)
	assert.Equal(t, "22", tracker.lastArgs["search_type"], "default search type must be injected")
}

func TestSubmitLookupMissingRequester(t *testing.T) {
	server := testServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "  ", personParams()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitLookupMissingParams(t *testing.T) {
	server := testServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", nil))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitLookupMissingPersonKeys(t *testing.T) {
	server := testServer(nil, nil, nil)

	params := personParams()
	delete(params, "dob")
	delete(params, "zip")

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", params))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "dob")
	assert.Contains(t, rec.Body.String(), "zip")
}

func TestSubmitLookupCustomSearchTypeSkipsPersonValidation(t *testing.T) {
	tracker := &fakeTracker{submitID: "100"}
	server := testServer(tracker, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups",
		submitBody(t, "chat-1", map[string]string{"search_type": "7", "query": "acme"}))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSubmitLookupNoSearchID(t *testing.T) {
	server := testServer(&fakeTracker{submitID: ""}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", personParams()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitLookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.SearchID)
	assert.Contains(t, resp.Message, "manually")
}

func TestSubmitLookupSubmittedButNotTracked(t *testing.T) {
	tracker := &fakeTracker{submitID: "100", submitErr: fmt.Errorf("insert failed")}
	server := testServer(tracker, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", personParams()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitLookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.SearchID)
	assert.Equal(t, "100", *resp.SearchID)
	assert.Contains(t, resp.Message, "not tracked")
}

func TestSubmitLookupProviderFailure(t *testing.T) {
	server := testServer(&fakeTracker{submitErr: errors.New("provider down")}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/lookups", submitBody(t, "chat-1", personParams()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetLookup(t *testing.T) {
	jobs := &fakeJobs{job: &models.LookupJob{SearchID: "100", ChatID: "chat-1", Attempt: 2}}
	server := testServer(nil, nil, jobs)

	req := httptest.NewRequest(http.MethodGet, "/api/lookups/100", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var job models.LookupJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "100", job.SearchID)
	assert.Equal(t, 2, job.Attempt)
}

func TestGetLookupNotFound(t *testing.T) {
	jobs := &fakeJobs{getErr: fmt.Errorf("%w: 100", storage.ErrJobNotFound)}
	server := testServer(nil, nil, jobs)

	req := httptest.NewRequest(http.MethodGet, "/api/lookups/100", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResultPassesPayloadThrough(t *testing.T) {
	tracker := &fakeTracker{result: json.RawMessage(`{"hits": 3}`)}
	server := testServer(tracker, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/lookups/100/result", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hits": 3}`, rec.Body.String())
}

func TestGetResultProviderFailure(t *testing.T) {
	server := testServer(&fakeTracker{resultErr: errors.New("provider down")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/lookups/100/result", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetBalance(t *testing.T) {
	balance := 42.5
	server := testServer(nil, &fakeBalance{result: &adapter.BalanceResult{
		Status:  "SUCCESS",
		Balance: &balance,
		Message: "ok",
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, "42.50", resp.Formatted)
}

func TestGetBalanceNoValue(t *testing.T) {
	server := testServer(nil, &fakeBalance{result: &adapter.BalanceResult{Status: "ERROR"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "N/A", resp.Formatted)
}

func TestPurgeDefaultWindow(t *testing.T) {
	jobs := &fakeJobs{purged: 7}
	server := testServer(nil, nil, jobs)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/purge", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PurgeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.Purged)

	wantCutoff := time.Now().UTC().AddDate(0, 0, -30)
	assert.WithinDuration(t, wantCutoff, jobs.cutoff, time.Minute)
}

func TestPurgeInvalidDays(t *testing.T) {
	server := testServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/purge?days=yesterday", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	server := testServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
