package rag

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend/internal/ai"
	"backend/internal/models"
	"backend/internal/rag/parsers"
)

// stubGeneration 返回固定结果的生成客户端
type stubGeneration struct {
	result *ai.GenerationResult
	err    error
	calls  int
}

func (s *stubGeneration) Generate(_ context.Context, _ string, _ ai.GenerationOptions) (*ai.GenerationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubGeneration) Model() string { return "stub-generation" }

type ragTestEnv struct {
	service   *RAGService
	provider  *stubEmbeddings
	gen       *stubGeneration
	dataStore *models.Store
	fileStore *FileVectorStore
}

func newRagTestEnv(t *testing.T) *ragTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.ChatMessage{}))

	provider := newStubEmbeddings(4)
	fileStore, err := NewFileVectorStore(t.TempDir(), provider)
	require.NoError(t, err)

	gen := &stubGeneration{result: &ai.GenerationResult{
		Outcome: ai.OutcomeSuccess,
		Text:    "Your daughter Mary visits every Sunday.",
	}}

	dataStore := models.NewStore(db)
	service := NewRAGService(
		NewChunker(1000),
		NewRetriever(fileStore, provider, testRagConfig()),
		fileStore,
		NewPromptBuilder(3000),
		gen,
		dataStore,
		parsers.NewRegistry(),
		nil, // 同步索引
	)

	return &ragTestEnv{
		service:   service,
		provider:  provider,
		gen:       gen,
		dataStore: dataStore,
		fileStore: fileStore,
	}
}

func TestRAGService_IngestAndAnswer(t *testing.T) {
	env := newRagTestEnv(t)
	ctx := context.Background()

	content := "My daughter Mary visits every Sunday."
	env.provider.vectors[content] = []float32{1, 0, 0, 0}
	env.provider.vectors["who visits on sunday?"] = []float32{1, 0, 0, 0}

	doc, err := env.service.IngestDocument(ctx, "u1", "family.txt", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, doc.Status)

	stored, err := env.dataStore.GetDocument(ctx, doc.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.ChunkCount)

	result, err := env.service.Answer(ctx, "u1", "Who visits on Sunday?")
	require.NoError(t, err)
	assert.Equal(t, "Who visits on Sunday?", result.Question)
	assert.Equal(t, "Your daughter Mary visits every Sunday.", result.Answer)
	assert.Equal(t, 1, result.SourcesUsed)
	// 相似度 1.0 + 1 条来源加成 0.1，封顶 1.0
	assert.Equal(t, 1.0, result.Confidence)

	// 对话被留痕
	history, err := env.service.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Who visits on Sunday?", history[0].Question)
	assert.Equal(t, 1.0, history[0].ConfidenceScore)
}

func TestRAGService_IngestRejectsEmpty(t *testing.T) {
	env := newRagTestEnv(t)

	_, err := env.service.IngestDocument(context.Background(), "u1", "blank.txt", []byte("   \n  "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestRAGService_IngestRejectsUnsupportedFormat(t *testing.T) {
	env := newRagTestEnv(t)

	_, err := env.service.IngestDocument(context.Background(), "u1", "photo.png", []byte{1, 2, 3})
	assert.ErrorIs(t, err, parsers.ErrUnsupportedFormat)
}

func TestRAGService_AnswerStripsMarkdown(t *testing.T) {
	env := newRagTestEnv(t)
	env.gen.result = &ai.GenerationResult{
		Outcome: ai.OutcomeSuccess,
		Text:    "  Your **birthday** is *June 4*.  ",
	}

	result, err := env.service.Answer(context.Background(), "u1", "When is my birthday?")
	require.NoError(t, err)
	assert.Equal(t, "Your birthday is June 4.", result.Answer)
}

func TestRAGService_AnswerEmptyKnowledgeBase(t *testing.T) {
	env := newRagTestEnv(t)

	result, err := env.service.Answer(context.Background(), "u1", "Where do I live?")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SourcesUsed)
	assert.Equal(t, 0.0, result.Confidence)
	assert.NotEmpty(t, result.Answer)
}

func TestRAGService_AnswerBlankQuestion(t *testing.T) {
	env := newRagTestEnv(t)

	_, err := env.service.Answer(context.Background(), "u1", "   ")
	assert.Error(t, err)
}

func TestRAGService_GenerationOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		result     *ai.GenerationResult
		err        error
		wantAnswer string
	}{
		{
			name:       "blocked",
			result:     &ai.GenerationResult{Outcome: ai.OutcomeBlocked, BlockReason: "SAFETY"},
			wantAnswer: fallbackBlockedAnswer,
		},
		{
			name:       "empty",
			result:     &ai.GenerationResult{Outcome: ai.OutcomeEmpty},
			wantAnswer: fallbackErrorAnswer,
		},
		{
			name:       "quota",
			err:        fmt.Errorf("上游: %w", ai.ErrQuotaExceeded),
			wantAnswer: fallbackQuotaAnswer,
		},
		{
			name:       "error",
			err:        fmt.Errorf("connection refused"),
			wantAnswer: fallbackErrorAnswer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newRagTestEnv(t)
			ctx := context.Background()

			content := "Take medicine at 8am every day."
			env.provider.vectors[content] = []float32{1, 0, 0, 0}
			env.provider.vectors["any question"] = []float32{1, 0, 0, 0}
			_, err := env.service.IngestDocument(ctx, "u1", "notes.txt", []byte(content))
			require.NoError(t, err)

			env.gen.result = tc.result
			env.gen.err = tc.err

			result, err := env.service.Answer(ctx, "u1", "Any Question")
			require.NoError(t, err)
			assert.Equal(t, tc.wantAnswer, result.Answer)
			// 置信度只反映检索质量，生成兜底时同样保留
			assert.Equal(t, 1, result.SourcesUsed)
			assert.Equal(t, 1.0, result.Confidence)
		})
	}
}

func TestRAGService_TruncatedTextStillUsable(t *testing.T) {
	env := newRagTestEnv(t)
	env.gen.result = &ai.GenerationResult{
		Outcome: ai.OutcomeTruncated,
		Text:    "Your doctor is Dr. Lee and the appoint",
	}

	result, err := env.service.Answer(context.Background(), "u1", "Who is my doctor?")
	require.NoError(t, err)
	assert.Equal(t, "Your doctor is Dr. Lee and the appoint", result.Answer)
}

func TestRAGService_Reset(t *testing.T) {
	env := newRagTestEnv(t)
	ctx := context.Background()

	_, err := env.service.IngestDocument(ctx, "u1", "a.txt", []byte("Take medicine at 8am."))
	require.NoError(t, err)
	_, err = env.service.Answer(ctx, "u1", "When do I take medicine?")
	require.NoError(t, err)

	require.NoError(t, env.service.Reset(ctx, "u1"))

	stats, err := env.service.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalChunks)
	assert.Equal(t, int64(0), stats.DocumentCount)
	assert.Equal(t, int64(0), stats.MessageCount)
	assert.False(t, stats.Ready)

	// 幂等：重复清空不报错
	assert.NoError(t, env.service.Reset(ctx, "u1"))
}

func TestRAGService_RebuildOnCorruptIndex(t *testing.T) {
	env := newRagTestEnv(t)
	ctx := context.Background()

	_, err := env.service.IngestDocument(ctx, "u1", "a.txt", []byte("First fact about home."))
	require.NoError(t, err)

	// 破坏元数据伴随文件制造不一致
	require.NoError(t, os.WriteFile(env.fileStore.metadataPath("u1"), []byte("[]"), 0o644))

	// 再次索引触发重建，旧文档与新文档都应回到索引中
	doc2, err := env.service.IngestDocument(ctx, "u1", "b.txt", []byte("Second fact about work."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, doc2.Status)

	stats, err := env.service.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalChunks)
}

func TestRAGService_DeleteDocumentRebuildsIndex(t *testing.T) {
	env := newRagTestEnv(t)
	ctx := context.Background()

	doc1, err := env.service.IngestDocument(ctx, "u1", "a.txt", []byte("Fact about medicine."))
	require.NoError(t, err)
	_, err = env.service.IngestDocument(ctx, "u1", "b.txt", []byte("Fact about family."))
	require.NoError(t, err)

	deleted, err := env.service.DeleteDocument(ctx, "u1", doc1.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	stats, err := env.service.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChunks)
	assert.Equal(t, int64(1), stats.DocumentCount)

	// 不存在的文档返回 false 而非错误
	deleted, err = env.service.DeleteDocument(ctx, "u1", "missing-id")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestComputeConfidence(t *testing.T) {
	assert.Equal(t, 0.0, computeConfidence(nil))

	// 单条: 0.5 + 0.1 = 0.6
	assert.Equal(t, 0.6, computeConfidence([]RetrievalResult{{Similarity: 0.5}}))

	// 加成封顶 0.3，总分封顶 1.0
	got := computeConfidence([]RetrievalResult{
		{Similarity: 0.9}, {Similarity: 0.9}, {Similarity: 0.9}, {Similarity: 0.9},
	})
	assert.Equal(t, 1.0, got)

	// 两位小数
	assert.Equal(t, 0.53, computeConfidence([]RetrievalResult{{Similarity: 0.425}}))
}
