package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo401b/new-Allert/internal/domain"
)

func TestDecodeJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		var v struct {
			SameProduct bool `json:"sameProduct"`
		}
		require.NoError(t, DecodeJSON(`{"sameProduct": true}`, &v))
		assert.True(t, v.SameProduct)
	})

	t.Run("fenced json block", func(t *testing.T) {
		var v []string
		require.NoError(t, DecodeJSON("```json\n[\"새우깡\", \"양파링\"]\n```", &v))
		assert.Equal(t, []string{"새우깡", "양파링"}, v)
	})

	t.Run("fence without language", func(t *testing.T) {
		var v []string
		require.NoError(t, DecodeJSON("```\n[\"a\"]\n```", &v))
		assert.Equal(t, []string{"a"}, v)
	})

	t.Run("prose around object", func(t *testing.T) {
		var v map[string]string
		require.NoError(t, DecodeJSON(`Sure! Here it is: {"selectedUrl": "https://a.co/1.jpg"} Hope that helps.`, &v))
		assert.Equal(t, "https://a.co/1.jpg", v["selectedUrl"])
	})

	t.Run("prose around array", func(t *testing.T) {
		var v []string
		require.NoError(t, DecodeJSON(`Best matches: ["a", "b"]`, &v))
		assert.Equal(t, []string{"a", "b"}, v)
	})

	t.Run("array of objects keeps outer array", func(t *testing.T) {
		var v []map[string]int
		require.NoError(t, DecodeJSON(`result: [{"a": 1}, {"a": 2}]`, &v))
		assert.Len(t, v, 2)
	})
}

func TestDecodeJSON_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"blank", "   \n"},
		{"prose only", "I cannot compare these images."},
		{"truncated", `{"sameProduct": tr`},
		{"wrong shape", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v []string
			err := DecodeJSON(tt.reply, &v)
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```JSON {\"a\":1}```"))
	assert.Equal(t, `plain`, stripCodeFence("  plain  "))
}

func TestSummarizePayload(t *testing.T) {
	assert.Equal(t, "<empty>", summarizePayload("  "))
	assert.Equal(t, "a b c", summarizePayload("a\n\tb   c"))

	long := make([]rune, 200)
	for i := range long {
		long[i] = '가'
	}
	summary := summarizePayload(string(long))
	assert.Equal(t, 163, len([]rune(summary)))
}
