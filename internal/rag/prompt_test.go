package rag

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestStripMarkdown(t *testing.T) {
	assert.Equal(t, "Take your medicine at 8am.", StripMarkdown("Take your **medicine** at *8am*."))
	assert.Equal(t, "no markdown here", StripMarkdown("no markdown here"))
	assert.Equal(t, "stray  asterisk", StripMarkdown("stray * asterisk"))
}

func TestClassifyQuestion(t *testing.T) {
	cases := map[string]string{
		"When is my birthday?":              questionPersonalDates,
		"What is my daughter's name?":       questionFamily,
		"What medication do I take?":        questionHealth,
		"Where did I work before retiring?": questionWork,
		"Where do I live?":                  questionLocation,
		"Tell me something nice":            questionGeneral,
	}
	for question, want := range cases {
		assert.Equal(t, want, classifyQuestion(question), question)
	}
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "", FormatContext(nil))

	got := FormatContext([]RetrievalResult{
		{Content: "first fact"},
		{Content: "second fact"},
	})
	assert.Equal(t, "[Document 1]: first fact\n\n[Document 2]: second fact", got)
}

func TestPromptBuilder_WithContext(t *testing.T) {
	b := NewPromptBuilder(3000)

	prompt := b.Build("When is my birthday?", []RetrievalResult{
		{Content: "Her birthday is June 4, 1952."},
	})

	assert.Contains(t, prompt, "[Document 1]: Her birthday is June 4, 1952.")
	assert.Contains(t, prompt, questionFocusHints[questionPersonalDates])
	assert.Contains(t, prompt, "Question: When is my birthday?")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestPromptBuilder_NoContext(t *testing.T) {
	b := NewPromptBuilder(3000)

	prompt := b.Build("Who visits on Sunday?", nil)

	assert.Contains(t, prompt, "no saved information")
	assert.NotContains(t, prompt, "[Document")
}

func TestPromptBuilder_ShortContextSkipsTruncation(t *testing.T) {
	b := NewPromptBuilder(3000)

	// 字符数低于预算时原样返回，不加载分词器
	ctx := "short context"
	assert.Equal(t, ctx, b.truncateContext(ctx))
	assert.Nil(t, b.encoding)
}

func TestPromptBuilder_ConcurrentTruncationLoadsEncodingOnce(t *testing.T) {
	b := NewPromptBuilder(10)
	var loads int32
	b.loadEncoding = func() (*tiktoken.Tiktoken, error) {
		atomic.AddInt32(&loads, 1)
		return nil, fmt.Errorf("加载失败")
	}

	long := strings.Repeat("memory ", 10)
	want := string([]rune(long)[:10])

	// 构建器被并发共享，分词器加载只允许发生一次
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, b.truncateContext(long))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}
