// 文件: pkg/calc/consumer.go
// 计算请求消费者 - 监听 NATS 上的计算请求，构建曲面并保存

package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bspnl.com/pkg/config"
	"bspnl.com/pkg/nats"
	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

// =============================================================================
// 请求结构
// =============================================================================

// CalculationRequest 计算请求
type CalculationRequest struct {
	Entry      options.Params `json:"entry"`
	SpotMin    float64        `json:"spot_min"`
	SpotMax    float64        `json:"spot_max"`
	VolMin     float64        `json:"vol_min"`
	VolMax     float64        `json:"vol_max"`
	Resolution int            `json:"resolution"`
}

// UnmarshalJSON entry 必须出现，入场参数的字段校验见 options.Params
func (r *CalculationRequest) UnmarshalJSON(data []byte) error {
	type plain CalculationRequest
	aux := struct {
		Entry *options.Params `json:"entry"`
		*plain
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Entry == nil {
		return &options.MissingFieldError{Field: "entry"}
	}
	r.Entry = *aux.Entry
	return nil
}

// Axes 生成情景轴
func (r CalculationRequest) Axes() (spotAxis, volAxis []float64, err error) {
	spotAxis, err = scenario.Linspace(scenario.AxisSpot, r.SpotMin, r.SpotMax, r.Resolution)
	if err != nil {
		return nil, nil, err
	}
	volAxis, err = scenario.Linspace(scenario.AxisVol, r.VolMin, r.VolMax, r.Resolution)
	if err != nil {
		return nil, nil, err
	}
	return spotAxis, volAxis, nil
}

// Normalize 分辨率限制在配置范围内，未给出的轴范围按入场参数展开
func (r *CalculationRequest) Normalize(limits config.EngineConfig) {
	r.Resolution = limits.ClampResolution(r.Resolution)
	if r.SpotMin == 0 && r.SpotMax == 0 {
		r.SpotMin = r.Entry.SpotPrice * (1 - limits.SpotSpread)
		r.SpotMax = r.Entry.SpotPrice * (1 + limits.SpotSpread)
	}
	if r.VolMin == 0 && r.VolMax == 0 {
		r.VolMin = r.Entry.Volatility * (1 - limits.VolSpread)
		r.VolMax = r.Entry.Volatility * (1 + limits.VolSpread)
	}
}

// SurfaceBuilder scenario.Engine 的构建能力
type SurfaceBuilder interface {
	BuildSurface(ctx context.Context, entry options.Params, spotAxis, volAxis []float64) (*scenario.Surface, error)
}

// =============================================================================
// RequestHandler
// =============================================================================

// RequestHandler 处理单个计算请求，与传输层无关
type RequestHandler struct {
	engine  SurfaceBuilder
	service *Service
	limits  config.EngineConfig
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewRequestHandler limits.MaxResolution 是单个请求允许的最大分辨率
func NewRequestHandler(engine SurfaceBuilder, service *Service, limits config.EngineConfig, log logrus.FieldLogger) *RequestHandler {
	return &RequestHandler{
		engine:  engine,
		service: service,
		limits:  limits,
		timeout: 30 * time.Second,
		log:     log,
	}
}

// Handle 解码请求 → 校验分辨率 → 构建曲面 → 保存
// 队列上的请求不做截断，超出 [1, MaxResolution] 直接拒绝。
func (h *RequestHandler) Handle(ctx context.Context, data []byte) (int64, error) {
	req, err := nats.UnmarshalJSON[CalculationRequest](data)
	if err != nil {
		return 0, fmt.Errorf("unmarshal calculation request: %w", err)
	}
	if req.Resolution < 1 || req.Resolution > h.limits.MaxResolution {
		return 0, &options.InvalidRangeError{
			Axis:   "resolution",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", h.limits.MaxResolution, req.Resolution),
		}
	}

	spotAxis, volAxis, err := req.Axes()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	surface, err := h.engine.BuildSurface(ctx, req.Entry, spotAxis, volAxis)
	if err != nil {
		return 0, err
	}
	return h.service.Save(ctx, surface)
}

// =============================================================================
// NATS 消费者
// =============================================================================

type Consumer struct {
	handler    *RequestHandler
	subscriber *nats.Subscriber
	subject    string
	queue      string
	log        logrus.FieldLogger
}

// NewConsumer 创建计算请求消费者
func NewConsumer(handler *RequestHandler, natsURL, subject, queue string, log logrus.FieldLogger) (*Consumer, error) {
	c := &Consumer{handler: handler, subject: subject, queue: queue, log: log}

	subscriber, err := nats.NewSubscriber(natsURL, c.handleMessage, log)
	if err != nil {
		return nil, err
	}
	c.subscriber = subscriber
	return c, nil
}

// Start 队列订阅，支持多实例负载均衡
func (c *Consumer) Start() error {
	return c.subscriber.SubscribeQueue(c.subject, c.queue)
}

func (c *Consumer) Stop() error {
	return c.subscriber.Close()
}

func (c *Consumer) handleMessage(subject string, data []byte) error {
	calcID, err := c.handler.Handle(context.Background(), data)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"subject":        subject,
		"calculation_id": calcID,
	}).Info("calculation request processed")
	return nil
}
