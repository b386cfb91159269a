package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentUnmarshalString(t *testing.T) {
	var m ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello world"}`), &m))
	assert.Equal(t, "user", m.Role)
	assert.Nil(t, m.Content.Parts)
	assert.Equal(t, "hello world", m.Content.PlainText())
	assert.True(t, m.Content.HasTextPart())
}

func TestMessageContentUnmarshalParts(t *testing.T) {
	raw := `{"role":"user","content":[
		{"type":"text","text":"look at this"},
		{"type":"image_url","image_url":{"url":"https://i.com/a.png"}},
		{"type":"text","text":"what is it?"}
	]}`
	var m ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Content.Parts, 3)
	// 文本片段按原始顺序拼接
	assert.Equal(t, "look at this\nwhat is it?", m.Content.PlainText())
	assert.True(t, m.Content.HasTextPart())
}

func TestMessageContentImageOnlyHasNoText(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"image_url","image_url":{"url":"https://i.com/a.png"}}]}`
	var m ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.False(t, m.Content.HasTextPart())
	assert.Empty(t, m.Content.PlainText())
}

func TestMessageContentUnmarshalRejectsGarbage(t *testing.T) {
	var m MessageContent
	assert.Error(t, json.Unmarshal([]byte(`42`), &m))
}

func TestApproximateTokens(t *testing.T) {
	assert.Zero(t, ApproximateTokens(""))
	assert.Zero(t, ApproximateTokens("   "))
	assert.Equal(t, 4, ApproximateTokens("one two  three\nfour"))
}
