package publisher

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"hikbridge/internal/models"
)

// StreamPublisher 将分类后的事件写入 Redis Streams，供监控面板等展示层消费
// 取代原先直接回调 UI 的日志通道；发布失败只记日志，不影响事件接收
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamPublisher 创建事件发布器
func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, logger: logger}
}

// PublishEvent XADD 一条扁平字段消息
func (p *StreamPublisher) PublishEvent(ctx context.Context, ev models.ParsedEvent) error {
	values := map[string]interface{}{
		"kind":      ev.Kind.String(),
		"device_ip": ev.DeviceIP,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if ev.Access != nil {
		values["major"] = strconv.Itoa(ev.Access.MajorType)
		values["minor"] = strconv.Itoa(ev.Access.MinorType)
		values["employee_no"] = ev.Access.EmployeeNo
		values["name"] = ev.Access.Name
		values["verify_mode"] = ev.Access.VerifyMode
	}
	if ev.LogEntry != "" {
		values["log_entry"] = ev.LogEntry
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return err
	}

	p.logger.Debug("Published event to stream",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("kind", ev.Kind.String()),
	)
	return nil
}
