// 文件: pkg/nats/publisher.go
// NATS 事件发布者 (计算完成通知等)

package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// connect 公共连接参数：断线无限重连
func connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return conn, nil
}

// Publisher NATS 发布者
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher 创建发布者
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url, "bspnl-publisher")
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

// Publish 以 JSON 发布消息
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return p.conn.Publish(subject, bytes)
}

// Close 发送完缓冲区后关闭
func (p *Publisher) Close() {
	_ = p.conn.Flush()
	p.conn.Close()
}
