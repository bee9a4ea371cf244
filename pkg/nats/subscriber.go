// 文件: pkg/nats/subscriber.go
// NATS 队列订阅者

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// MessageHandler 消息处理函数
type MessageHandler func(subject string, data []byte) error

// Subscriber NATS 订阅者
type Subscriber struct {
	conn    *nats.Conn
	subs    []*nats.Subscription
	handler MessageHandler
	log     logrus.FieldLogger
}

// NewSubscriber 创建订阅者
func NewSubscriber(url string, handler MessageHandler, log logrus.FieldLogger) (*Subscriber, error) {
	conn, err := connect(url, "bspnl-subscriber")
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		conn:    conn,
		handler: handler,
		log:     log,
	}, nil
}

// SubscribeQueue 队列订阅 (多实例负载均衡)
func (s *Subscriber) SubscribeQueue(subject, queue string) error {
	sub, err := s.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if err := s.handler(msg.Subject, msg.Data); err != nil {
			s.log.WithFields(logrus.Fields{
				"subject": msg.Subject,
				"queue":   queue,
			}).WithError(err).Error("handle nats message")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close 排空全部订阅后断开，正在处理的消息会先处理完
func (s *Subscriber) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

// =============================================================================
// 便捷方法
// =============================================================================

// UnmarshalJSON 反序列化 JSON
func UnmarshalJSON[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
