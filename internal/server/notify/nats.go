package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderEventKind заголовок NATS с типом события
const HeaderEventKind = "Doccollab-Event"

// NATSPublisher публикует события в core NATS (без JetStream)
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher подключается к NATS
func NewNATSPublisher(servers []string, name string) (*NATSPublisher, error) {
	if len(servers) == 0 {
		return nil, errors.New("nats servers missing")
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.Timeout(3 * time.Second),
	}
	nc, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{nc: nc}, nil
}

// Publish отправляет событие в subject
func (p *NATSPublisher) Publish(_ context.Context, subject string, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderEventKind, string(ev.Kind))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish failed: %w", err)
	}
	return nil
}

// Close сбрасывает буфер и закрывает соединение
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
