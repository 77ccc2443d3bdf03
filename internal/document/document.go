// Package document 检查上传的 IES PDF 并读取其文本层
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/ledongthuc/pdf"
)

// MaxTextLen 文本层截断长度
const MaxTextLen = 50000

var pdfMagic = []byte("%PDF-")

// Info 文档基本信息
type Info struct {
	Size        int
	Pages       int
	Fingerprint string
	// Text 为空表示扫描件或无文本层
	Text string
}

// HasText 文档是否带有可用文本层
func (i Info) HasText() bool { return strings.TrimSpace(i.Text) != "" }

// Fingerprint 文档内容 SHA-256
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Inspect 校验 PDF 并提取页数和文本层
func Inspect(data []byte) (info Info, err error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty document", apperrors.ErrInvalidDocument)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic) {
		return Info{}, fmt.Errorf("%w: not a PDF file", apperrors.ErrInvalidDocument)
	}

	defer func() {
		if r := recover(); r != nil {
			info = Info{}
			err = fmt.Errorf("%w: panic while reading PDF: %v", apperrors.ErrInvalidDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidDocument, err)
	}

	info = Info{
		Size:        len(data),
		Pages:       r.NumPage(),
		Fingerprint: Fingerprint(data),
	}
	if info.Pages == 0 {
		return Info{}, fmt.Errorf("%w: document has no pages", apperrors.ErrInvalidDocument)
	}

	var sb strings.Builder
	for i := 1; i <= info.Pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() > MaxTextLen {
			break
		}
	}
	info.Text = truncate(sb.String(), MaxTextLen)
	return info, nil
}

// truncate 按字节截断但不切开 UTF-8 字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
