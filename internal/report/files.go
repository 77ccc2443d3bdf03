package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

// 输出文件前缀
const (
	ExcelPrefix = "autofund_analysis"
	JSONPrefix  = "analysis"
)

// FileName 生成 <prefix>_<nif>_<YYYYMMDD_HHMMSS>.<ext>
func FileName(prefix, taxID string, t time.Time, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", prefix, taxID, t.Format(timestampLayout), strings.TrimPrefix(ext, "."))
}

// Matches 返回 dir 中由 FileName 生成 (含序号后缀) 的已有文件
func Matches(dir, prefix, taxID string, t time.Time, ext string) ([]string, error) {
	ext = strings.TrimPrefix(ext, ".")
	pattern := fmt.Sprintf("%s_%s_%s*.%s", prefix, taxID, t.Format(timestampLayout), ext)
	return filepath.Glob(filepath.Join(dir, pattern))
}

// Reserve 以独占方式创建空文件占位，同名已存在时追加序号
func Reserve(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 100; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserve %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("reserve %s: too many files with the same name", name)
}

// SaveJSON 将报告写入 path
func SaveJSON(path string, r Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadJSON 从文件读取报告
func LoadJSON(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()
	return ReadJSON(f)
}
