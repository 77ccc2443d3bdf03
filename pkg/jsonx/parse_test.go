package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Here is the data:\n{\"a\":1}\nThanks", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractObject(tt.in))
		})
	}
}

func TestSmartParseStandardKeepsNumbers(t *testing.T) {
	raw, strategy, err := SmartParse(`{"volume_negocios": 1234567.891234567891}`)
	require.NoError(t, err)
	assert.Equal(t, StrategyStandard, strategy)

	m, err := DecodeObject(raw)
	require.NoError(t, err)
	assert.Equal(t, json.Number("1234567.891234567891"), m["volume_negocios"])
}

func TestSmartParseRepair(t *testing.T) {
	raw, strategy, err := SmartParse(`{"nif": "123456789", "cae": "62010",}`)
	require.NoError(t, err)
	assert.NotEqual(t, StrategyStandard, strategy)

	m, err := DecodeObject(raw)
	require.NoError(t, err)
	assert.Equal(t, "123456789", m["nif"])
}

func TestSmartParseEmpty(t *testing.T) {
	_, _, err := SmartParse("   ")
	assert.Error(t, err)
}

func TestDecodeObjectRejectsArray(t *testing.T) {
	_, err := DecodeObject([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodeObject([]byte(`null`))
	assert.Error(t, err)
}

func TestDecodeObjectRejectsTrailingContent(t *testing.T) {
	for _, input := range []string{
		`{"a": 1}{"a": 2}`,
		`{"a": 1} trailing`,
		`{"a": 1}}`,
	} {
		_, err := DecodeObject([]byte(input))
		assert.Error(t, err, input)
	}

	out, err := DecodeObject([]byte("{\"a\": 1}\n  \t"))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), out["a"])
}
