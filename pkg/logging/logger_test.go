package logging

import (
	"path/filepath"
	"testing"

	"github.com/autofund-ai/autofund/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: format})
		require.NoError(t, err)
		logger.Debug("hello")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autofund.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Info("written")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestSanitizeForLog(t *testing.T) {
	out := SanitizeForLog(map[string]interface{}{
		"api_key": "sk-123",
		"nif":     "123456789",
		"periodo": "2023",
	})
	assert.Equal(t, "***REDACTED***", out["api_key"])
	assert.Equal(t, "******789", out["nif"])
	assert.Equal(t, "2023", out["periodo"])
}

func TestMaskNIF(t *testing.T) {
	assert.Equal(t, "***", MaskNIF("123"))
	assert.Equal(t, "", MaskNIF(""))
	assert.Equal(t, "***4567", MaskNIF(" 1234567 "))
}

func TestToZapFieldsOdd(t *testing.T) {
	assert.Nil(t, toZapFields([]interface{}{"k"}))
	assert.Len(t, toZapFields([]interface{}{"k", 1, 2, 3}), 1)
}
