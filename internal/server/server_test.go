package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/autofund-ai/autofund/internal/document/documenttest"
	"github.com/autofund-ai/autofund/internal/report"
	"github.com/autofund-ai/autofund/internal/workflow"
	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeJobs struct {
	mu        sync.Mutex
	submitted []Job
	statuses  map[string]*JobStatus
	submitErr error
}

func (f *fakeJobs) Submit(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, job)
	return nil
}

func (f *fakeJobs) Status(_ context.Context, jobID string) (*JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[jobID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return st, nil
}

func newTestServer(t *testing.T, jobs JobService) (*Server, config.ServerConfig) {
	t.Helper()
	cfg := config.ServerConfig{
		Addr:           ":0",
		MaxUploadBytes: 1 << 20,
		UploadDir:      filepath.Join(t.TempDir(), "uploads"),
	}
	return New(cfg, "test", jobs, zap.NewNop()), cfg
}

func multipartBody(t *testing.T, fileName string, content []byte, companyContext string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if companyContext != "" {
		require.NoError(t, mw.WriteField("company_context", companyContext))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, s *Server, fileName string, content []byte, companyContext string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fileName, content, companyContext)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ies", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestUploadAccepted(t *testing.T) {
	jobs := &fakeJobs{}
	s, cfg := newTestServer(t, jobs)

	rec := upload(t, s, "ies.pdf", documenttest.PDF("IES 2023"), "  Exportadora de software  ")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, resp.Status)

	require.Len(t, jobs.submitted, 1)
	job := jobs.submitted[0]
	assert.Equal(t, resp.JobID, job.ID)
	assert.Equal(t, "Exportadora de software", job.CompanyContext)
	assert.Equal(t, "ies.pdf", job.FileName)

	dir, err := filepath.Abs(cfg.UploadDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, resp.JobID+".pdf"), job.DocumentPath)
	stored, err := os.ReadFile(job.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, documenttest.PDF("IES 2023"), stored)
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  []byte
		status   int
		code     string
	}{
		{"no file", "", nil, http.StatusBadRequest, "MISSING_FILE"},
		{"wrong extension", "ies.txt", documenttest.PDF("x"), http.StatusBadRequest, "NOT_PDF"},
		{"not a pdf", "ies.pdf", []byte("plain text pretending"), http.StatusBadRequest, "NOT_PDF"},
		{"empty", "ies.pdf", []byte{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"too large", "ies.pdf", append([]byte("%PDF-"), make([]byte, 2<<20)...), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			s, _ := newTestServer(t, jobs)
			rec := upload(t, s, tt.fileName, tt.content, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec))
			assert.Empty(t, jobs.submitted)
		})
	}
}

func TestUploadSubmitFailureRemovesFile(t *testing.T) {
	jobs := &fakeJobs{submitErr: errors.New("temporal down")}
	s, cfg := newTestServer(t, jobs)

	rec := upload(t, s, "ies.pdf", documenttest.PDF("x"), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func completedJob(t *testing.T) (string, *JobStatus) {
	t.Helper()
	dir := t.TempDir()
	excel := filepath.Join(dir, "autofund_analysis_123456789_20240315_143005.xlsx")
	jsonPath := filepath.Join(dir, "analysis_123456789_20240315_143005.json")
	require.NoError(t, os.WriteFile(excel, []byte("xlsx"), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"metadata": {}}`), 0o644))

	id := uuid.NewString()
	return id, &JobStatus{
		JobID:    id,
		State:    JobCompleted,
		Stage:    workflow.StageCompleted,
		Progress: 100,
		Result: &workflow.WorkflowOutput{
			JobID:     id,
			TaxID:     "123456789",
			RiskLevel: "MEDIUM",
			Files:     report.Files{Excel: excel, JSON: jsonPath},
		},
	}
}

func TestStatus(t *testing.T) {
	id, st := completedJob(t)
	s, _ := newTestServer(t, &fakeJobs{statuses: map[string]*JobStatus{id: st}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, JobCompleted, got.State)
	assert.Equal(t, "MEDIUM", got.Result.RiskLevel)
}

func TestStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t, &fakeJobs{})

	for _, path := range []string{"/api/v1/jobs/" + uuid.NewString(), "/api/v1/jobs/not-a-uuid"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec))
	}
}

func TestDownload(t *testing.T) {
	id, st := completedJob(t)
	s, _ := newTestServer(t, &fakeJobs{statuses: map[string]*JobStatus{id: st}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id+"/files/excel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xlsx", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "autofund_123456789.xlsx")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id+"/files/pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadPendingJob(t *testing.T) {
	id := uuid.NewString()
	s, _ := newTestServer(t, &fakeJobs{statuses: map[string]*JobStatus{
		id: {JobID: id, State: JobProcessing, Stage: workflow.StageAnalyzing},
	}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id+"/files/json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE_UNAVAILABLE", decodeError(t, rec))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeJobs{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
