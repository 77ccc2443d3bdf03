package activity

import (
	"context"
	"encoding/json"
	"errors"
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
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"
)

type staticExtractor struct {
	data map[string]interface{}
	err  error
}

func (s staticExtractor) Extract(context.Context, []byte) (map[string]interface{}, error) {
	return s.data, s.err
}

func newActivities(t *testing.T, ex staticExtractor) (*Activities, string) {
	t.Helper()
	dir := t.TempDir()
	sheets, err := spreadsheet.NewWriter("", "v1", zap.NewNop())
	require.NoError(t, err)
	runner := pipeline.NewRunner(ex, analysis.NewAssembler(nil, nil), sheets, filepath.Join(dir, "outputs"), zap.NewNop())
	return NewActivitiesWithRunner(runner, zap.NewNop()), dir
}

func writePDF(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ies.pdf")
	require.NoError(t, os.WriteFile(path, documenttest.PDF("IES 2023"), 0o644))
	return path
}

func applicationErrorOf(t *testing.T, err error) *temporal.ApplicationError {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected ApplicationError, got %v", err)
	return appErr
}

func TestActivitiesHappyPath(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	a, dir := newActivities(t, staticExtractor{data: recordtest.Raw()})
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.ExtractActivity, ExtractInput{JobID: "j1", DocumentPath: writePDF(t, dir)})
	require.NoError(t, err)
	var extracted ExtractResult
	require.NoError(t, val.Get(&extracted))
	assert.Len(t, extracted.Fingerprint, 64)
	assert.Contains(t, string(extracted.Raw), `"volume_negocios":245831.27`)

	val, err = env.ExecuteActivity(a.AnalyzeActivity, AnalyzeInput{JobID: "j1", Raw: extracted.Raw})
	require.NoError(t, err)
	var analyzed AnalyzeResult
	require.NoError(t, val.Get(&analyzed))
	assert.Equal(t, analysis.RiskMedium, analyzed.Analysis.Risk())

	at := time.Date(2024, 3, 15, 14, 30, 5, 0, time.UTC)
	val, err = env.ExecuteActivity(a.WriteOutputsActivity, WriteOutputsInput{
		JobID: "j1", Record: analyzed.Record, Analysis: analyzed.Analysis, ProcessedAt: at,
	})
	require.NoError(t, err)
	var written WriteOutputsResult
	require.NoError(t, val.Get(&written))
	assert.Equal(t, "MEDIUM", written.RiskLevel)
	assert.True(t, written.Balanced)
	assert.FileExists(t, written.Files.Excel)
	assert.Equal(t, "analysis_123456789_20240315_143005.json", filepath.Base(written.Files.JSON))

	_, err = env.ExecuteActivity(a.CleanupOutputsActivity, CleanupInput{JobID: "j1", TaxID: "123456789", ProcessedAt: at})
	require.NoError(t, err)
	assert.NoFileExists(t, written.Files.Excel)
	assert.NoFileExists(t, written.Files.JSON)
}

func TestAnalyzeActivityValidationErrorIsNonRetryable(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	a, _ := newActivities(t, staticExtractor{})
	env.RegisterActivity(a)

	raw, err := json.Marshal(recordtest.With(map[string]interface{}{record.KeyTaxID: "123"}))
	require.NoError(t, err)

	_, err = env.ExecuteActivity(a.AnalyzeActivity, AnalyzeInput{JobID: "j2", Raw: raw})
	require.Error(t, err)
	appErr := applicationErrorOf(t, err)
	assert.Equal(t, apperrors.TypeValidationError, appErr.Type())
	assert.True(t, appErr.NonRetryable())
	assert.True(t, appErr.HasDetails())

	var violations []record.Violation
	require.NoError(t, appErr.Details(&violations))
	require.NotEmpty(t, violations)
	assert.Equal(t, record.KeyTaxID, violations[0].Field)
}

func TestExtractActivityMissingDocument(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	a, dir := newActivities(t, staticExtractor{data: recordtest.Raw()})
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.ExtractActivity, ExtractInput{JobID: "j3", DocumentPath: filepath.Join(dir, "missing.pdf")})
	require.Error(t, err)
	appErr := applicationErrorOf(t, err)
	assert.Equal(t, apperrors.TypeValidationError, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestExtractActivityRateLimitIsRetryable(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	a, dir := newActivities(t, staticExtractor{err: apperrors.ErrRateLimited})
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.ExtractActivity, ExtractInput{JobID: "j4", DocumentPath: writePDF(t, dir)})
	require.Error(t, err)
	appErr := applicationErrorOf(t, err)
	assert.Equal(t, "RATE_LIMITED", appErr.Type())
	assert.False(t, appErr.NonRetryable())
}
