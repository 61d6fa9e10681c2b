// Package mq 提供RabbitMQ低库存告警发布。
// 告警属于旁路通知：发布失败只记日志，绝不影响库存变更本身。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

// AlertPublisher 低库存告警发布接口
type AlertPublisher interface {
	PublishLowStock(ctx context.Context, alert *domain.LowStockAlert) error
	Close() error
}

// RabbitAlertPublisher 基于RabbitMQ topic交换机的发布器。
// routing key 形如 stock.alert.<severity>，订阅方（管理后台、告警网关）
// 可按级别过滤。
type RabbitAlertPublisher struct {
	url      string
	exchange string
	lg       *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitAlertPublisher 建立连接、声明交换机
func NewRabbitAlertPublisher(url, exchange string, lg *zap.Logger) (*RabbitAlertPublisher, error) {
	p := &RabbitAlertPublisher{url: url, exchange: exchange, lg: lg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect 建立连接与信道；发布失败后下一次发布前会重建
func (p *RabbitAlertPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// durable topic 交换机，进程重启不丢拓扑
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.lg.Info("alert publisher connected", zap.String("exchange", p.exchange))
	return nil
}

// PublishLowStock 发布一条低库存告警事件
func (p *RabbitAlertPublisher) PublishLowStock(ctx context.Context, alert *domain.LowStockAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	routingKey := fmt.Sprintf("stock.alert.%s", alert.Severity)
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         "low_stock_alert",
		Body:         body,
	})
	if err != nil {
		// 置空信道，下次发布触发重连
		p.ch = nil
		return fmt.Errorf("publish alert: %w", err)
	}

	p.lg.Debug("low stock alert published",
		zap.String("routing_key", routingKey),
		zap.Int64("product_id", alert.ProductID),
		zap.String("severity", string(alert.Severity)),
	)
	return nil
}

// Close 关闭信道与连接
func (p *RabbitAlertPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// NoopAlertPublisher 禁用MQ时的空实现
type NoopAlertPublisher struct{}

func (NoopAlertPublisher) PublishLowStock(ctx context.Context, alert *domain.LowStockAlert) error {
	return nil
}

func (NoopAlertPublisher) Close() error { return nil }
