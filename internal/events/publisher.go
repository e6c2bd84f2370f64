// Package events 把入站消息事件发布到 AMQP topic exchange,
// 供下游系统(CRM 同步、数据仓库)订阅消费。可选能力,未配置时整条链路跳过。
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher AMQP 事件发布器
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *logrus.Logger
}

// NewPublisher 建立连接并声明 topic exchange
func NewPublisher(url, exchange string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish 以事件名为 routing key 发布一条持久化消息
func (p *Publisher) Publish(ctx context.Context, event string, payload interface{}) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, event, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		p.logger.WithFields(logrus.Fields{
			"event":    event,
			"exchange": p.exchange,
		}).Debug("Event published")
	}
	return err
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
