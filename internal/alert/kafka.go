package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// AlertMessage is the JSON payload published for each anomaly
type AlertMessage struct {
	Tool         string   `json:"tool"`
	Query        string   `json:"query"`
	Severity     string   `json:"severity"`
	Confidence   float64  `json:"confidence"`
	NewTopics    []string `json:"new_topics"`
	CommonTopics []string `json:"common_topics"`
	Reason       string   `json:"reason"`
	Session      string   `json:"session,omitempty"`
	Timestamp    string   `json:"timestamp"`
	Source       string   `json:"source"`
}

// NewAlertMessage builds the published payload of an anomaly event
func NewAlertMessage(ev Event) AlertMessage {
	res := ev.Result
	return AlertMessage{
		Tool:         res.Tool,
		Query:        res.Query,
		Severity:     res.Severity(),
		Confidence:   res.Confidence,
		NewTopics:    res.NewTopics,
		CommonTopics: res.CommonTopics,
		Reason:       res.Reason,
		Session:      ev.Session,
		Timestamp:    ev.Time.UTC().Format(time.RFC3339Nano),
		Source:       "mcp-sentinel",
	}
}

// Producer is the part of a Kafka client the sink needs
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// PublishTimeout bounds a single publish so an unreachable broker cannot
// stall the caller.
const PublishTimeout = 5 * time.Second

// KafkaSink publishes anomalies to a Kafka topic. Other events are ignored.
type KafkaSink struct {
	producer Producer
	topic    string
	timeout  time.Duration
	close    func()
}

// NewKafkaSink connects to brokers and publishes to topic
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
		kgo.RecordDeliveryTimeout(PublishTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{producer: client, topic: topic, timeout: PublishTimeout, close: client.Close}, nil
}

// NewKafkaSinkWithProducer publishes through an existing producer
func NewKafkaSinkWithProducer(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic, timeout: PublishTimeout}
}

// WithTimeout overrides the per-publish bound
func (k *KafkaSink) WithTimeout(d time.Duration) *KafkaSink {
	k.timeout = d
	return k
}

func (k *KafkaSink) Emit(ctx context.Context, ev Event) error {
	if ev.Kind != KindAnomaly || ev.Result == nil {
		return nil
	}
	data, err := json.Marshal(NewAlertMessage(ev))
	if err != nil {
		return fmt.Errorf("kafka publish: marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(ev.Result.Tool),
		Value: data,
	}
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close releases the client
func (k *KafkaSink) Close() {
	if k.close != nil {
		k.close()
	}
}
