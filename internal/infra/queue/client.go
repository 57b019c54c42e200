package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"backend/internal/config"
	"backend/internal/worker/tasks"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueIndexDocument(ctx context.Context, documentID string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

// EnqueueIndexDocument 投递文档索引任务
func (c *asynqClient) EnqueueIndexDocument(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(tasks.IndexDocumentPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("序列化任务载荷失败: %w", err)
	}

	task := asynq.NewTask(tasks.TypeIndexDocument, payload)

	// 索引涉及外部嵌入接口，允许重试并放宽超时
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("kb"),
	)
	if err != nil {
		return fmt.Errorf("投递索引任务失败: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
