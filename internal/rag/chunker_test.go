package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(1000)

	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunker_SingleShortText(t *testing.T) {
	c := NewChunker(1000)

	chunks := c.Chunk("My name is Alice. I live in Boston.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "My name is Alice. I live in Boston.", chunks[0].Content)
	assert.NotNil(t, chunks[0].Metadata)
}

func TestChunker_SplitsOnSize(t *testing.T) {
	c := NewChunker(50)

	// 每句约 30 字符，两句相加超过上限，应各自成块
	text := "The quick brown fox jumps over. The lazy dog sleeps in the sun."
	chunks := c.Chunk(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "The quick brown fox jumps over.", chunks[0].Content)
	assert.Equal(t, "The lazy dog sleeps in the sun.", chunks[1].Content)
}

func TestChunker_OversizedSentenceNotHardCut(t *testing.T) {
	c := NewChunker(20)

	// 单句超过上限时整句保留，不做硬切
	long := strings.Repeat("word ", 20) + "end."
	chunks := c.Chunk(long)
	require.Len(t, chunks, 1)
	assert.Greater(t, len(chunks[0].Content), 20)
}

func TestChunker_NormalizesWhitespace(t *testing.T) {
	c := NewChunker(1000)

	chunks := c.Chunk("Hello   world.\n\nNext\tline here.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world. Next line here.", chunks[0].Content)
}

func TestChunker_DecimalPointNotSentenceEnd(t *testing.T) {
	sentences := splitIntoSentences("The dose is 2.5 mg daily. Take with food.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "The dose is 2.5 mg daily.", sentences[0])
	assert.Equal(t, "Take with food.", sentences[1])
}

func TestChunker_ChineseFullStop(t *testing.T) {
	sentences := splitIntoSentences("今天天气很好。我们去公园。")
	require.Len(t, sentences, 2)
}

func TestExtractMetadata_Dates(t *testing.T) {
	meta := ExtractMetadata("Her birthday is 03/15/1952 and the checkup is on 2026-09-01. They married on June 4, 1975.")

	dates, ok := meta["dates"].([]string)
	require.True(t, ok)
	assert.Contains(t, dates, "03/15/1952")
	assert.Contains(t, dates, "2026-09-01")
	assert.Contains(t, dates, "June 4, 1975")
}

func TestExtractMetadata_People(t *testing.T) {
	meta := ExtractMetadata("Mary Johnson visits every Sunday. Mary Johnson brings soup. Robert Smith calls on Mondays.")

	people, ok := meta["people"].([]string)
	require.True(t, ok)
	// 重复出现的人名只保留一次
	assert.Equal(t, []string{"Mary Johnson", "Robert Smith"}, people)
}

func TestExtractMetadata_Keywords(t *testing.T) {
	meta := ExtractMetadata("Take your MEDICATION before the doctor appointment at the clinic.")

	keywords, ok := meta["keywords"].([]string)
	require.True(t, ok)
	assert.Contains(t, keywords, "medication")
	assert.Contains(t, keywords, "doctor")
	assert.Contains(t, keywords, "appointment")
	assert.Contains(t, keywords, "clinic")
	assert.NotContains(t, keywords, "hospital")
}

func TestHasKeyword(t *testing.T) {
	meta := ExtractMetadata("She takes medicine every morning.")
	assert.True(t, HasKeyword(meta, "medicine"))
	assert.False(t, HasKeyword(meta, "hospital"))

	// JSON 反序列化后的 []any 形态同样可判定
	jsonMeta := map[string]any{"keywords": []any{"medicine"}}
	assert.True(t, HasKeyword(jsonMeta, "medicine"))
}
