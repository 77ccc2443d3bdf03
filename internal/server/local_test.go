package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/document/documenttest"
	"github.com/autofund-ai/autofund/internal/pipeline"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/internal/record/recordtest"
	"github.com/autofund-ai/autofund/internal/spreadsheet"
	"github.com/autofund-ai/autofund/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticExtractor struct {
	data map[string]interface{}
}

func (s staticExtractor) Extract(context.Context, []byte) (map[string]interface{}, error) {
	return s.data, nil
}

func newLocalJobs(t *testing.T, raw map[string]interface{}, store JobStore) *LocalJobs {
	t.Helper()
	sheets, err := spreadsheet.NewWriter("", "v1", zap.NewNop())
	require.NoError(t, err)
	runner := pipeline.NewRunner(staticExtractor{data: raw}, analysis.NewAssembler(nil, nil), sheets,
		filepath.Join(t.TempDir(), "outputs"), zap.NewNop())
	jobs := NewLocalJobs(runner, store, 2, zap.NewNop())
	t.Cleanup(jobs.Close)
	return jobs
}

func submitPDF(t *testing.T, jobs *LocalJobs) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ies.pdf")
	require.NoError(t, os.WriteFile(path, documenttest.PDF("IES"), 0o644))
	id := uuid.NewString()
	require.NoError(t, jobs.Submit(context.Background(), Job{ID: id, DocumentPath: path, SubmittedAt: time.Now()}))
	return id
}

func TestLocalJobsCompletes(t *testing.T) {
	jobs := newLocalJobs(t, recordtest.Raw(), NewMemoryStore())
	id := submitPDF(t, jobs)
	jobs.Wait()

	st, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, workflow.StageCompleted, st.Stage)
	assert.Equal(t, 100.0, st.Progress)
	assert.Equal(t, []string{workflow.StepExtract, workflow.StepAnalyze, workflow.StepWrite}, st.CompletedSteps)
	require.NotNil(t, st.Result)
	assert.Equal(t, "MEDIUM", st.Result.RiskLevel)
	assert.FileExists(t, st.Result.Files.Excel)
	assert.FileExists(t, st.Result.Files.JSON)
}

func TestLocalJobsValidationFailure(t *testing.T) {
	jobs := newLocalJobs(t, recordtest.With(map[string]interface{}{record.KeyTaxID: "123"}), NewMemoryStore())
	id := submitPDF(t, jobs)
	jobs.Wait()

	st, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
	assert.Equal(t, workflow.StageFailed, st.Stage)
	assert.Equal(t, []string{workflow.StepExtract}, st.CompletedSteps)
	assert.Contains(t, st.Error, record.KeyTaxID)
	assert.Nil(t, st.Result)
}

func TestLocalJobsMissingDocument(t *testing.T) {
	jobs := newLocalJobs(t, recordtest.Raw(), NewMemoryStore())
	id := uuid.NewString()
	require.NoError(t, jobs.Submit(context.Background(), Job{ID: id, DocumentPath: filepath.Join(t.TempDir(), "gone.pdf")}))
	jobs.Wait()

	st, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
}

func TestLocalJobsServedOverHTTP(t *testing.T) {
	jobs := newLocalJobs(t, recordtest.Raw(), NewMemoryStore())
	s, _ := newTestServer(t, jobs)

	rec := upload(t, s, "ies.pdf", documenttest.PDF("IES 2023"), "")
	require.Equal(t, 202, rec.Code)
	jobs.Wait()

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	st, err := jobs.Status(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
}
