// Package jsonx 解析模型输出中的 JSON，依次尝试标准解析、修复与 Hjson
package jsonx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Strategy 成功解析所用的策略
type Strategy string

const (
	StrategyStandard Strategy = "standard"
	StrategyRepair   Strategy = "repair"
	StrategyHjson    Strategy = "hjson"
)

// ExtractObject 去掉 markdown 代码块与前后说明文字，返回第一个 '{' 到最后一个 '}' 之间的内容
func ExtractObject(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// SmartParse 将模型输出规整为单个 JSON 对象
// 返回的字节保持数字原样，调用方应使用 UseNumber 解码
func SmartParse(text string) (json.RawMessage, Strategy, error) {
	candidate := ExtractObject(text)
	if candidate == "" {
		return nil, "", fmt.Errorf("SMART_PARSE_FAILED: empty input")
	}

	// 1. 标准 JSON
	if isObject([]byte(candidate)) {
		return json.RawMessage(candidate), StrategyStandard, nil
	}

	// 2. JSON 修复
	if repaired, err := jsonrepair.RepairJSON(candidate); err == nil && isObject([]byte(repaired)) {
		return json.RawMessage(repaired), StrategyRepair, nil
	}

	// 3. Hjson (最宽松)
	var value interface{}
	opts := hjson.DefaultDecoderOptions()
	opts.UseJSONNumber = true
	if err := hjson.UnmarshalWithOptions([]byte(candidate), &value, opts); err == nil {
		if _, ok := value.(map[string]interface{}); ok {
			out, err := json.Marshal(value)
			if err == nil {
				return json.RawMessage(out), StrategyHjson, nil
			}
		}
	}

	return nil, "", fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed for input")
}

// DecodeObject 以 UseNumber 方式把 JSON 对象解码为 map，对象之后只允许空白
func DecodeObject(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after JSON object")
	}
	return out, nil
}

func isObject(data []byte) bool {
	_, err := DecodeObject(data)
	return err == nil
}
