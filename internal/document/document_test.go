package document_test

import (
	"strings"
	"testing"

	"github.com/autofund-ai/autofund/internal/document"
	"github.com/autofund-ai/autofund/internal/document/documenttest"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	data := documenttest.PDF("IES 2023", "Volume de negocios 245831.27")
	info, err := document.Inspect(data)
	require.NoError(t, err)

	assert.Equal(t, 1, info.Pages)
	assert.Equal(t, len(data), info.Size)
	assert.Equal(t, document.Fingerprint(data), info.Fingerprint)
	assert.True(t, info.HasText())
	assert.Contains(t, info.Text, "245831.27")
}

func TestInspectRejectsNonPDF(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("nome_empresa,nif\nExemplo,123456789\n"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< >>\n"),
		"bad xref":  []byte("%PDF-1.4\n" + strings.Repeat(" ", 120) + "\nstartxref\n9999\n%%EOF\n"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := document.Inspect(data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)
		})
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		document.Fingerprint(nil))
	a := documenttest.PDF("a")
	b := documenttest.PDF("b")
	assert.NotEqual(t, document.Fingerprint(a), document.Fingerprint(b))
	assert.Equal(t, document.Fingerprint(a), document.Fingerprint(append([]byte(nil), a...)))
}
