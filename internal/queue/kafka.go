package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// Kafka publishes operations to the ops topic. Size is computed as
// consumer-group lag: last offsets minus committed offsets, summed over
// partitions.
type Kafka struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
}

// NewKafka builds the producer. Messages are keyed by user and type so
// one user's operations stay ordered within a partition.
func NewKafka(ctx context.Context, brokers []string, topic, groupID string) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 0,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info(ctx, "Kafka ops producer initialized", "topic", topic, "brokers", brokers)
	return &Kafka{writer: writer, brokers: brokers, topic: topic, groupID: groupID}
}

// EnsureTopic creates the ops topic with the given partitions (idempotent).
// Call at startup; if it fails (no broker, topic exists), the app still runs.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) {
	if len(brokers) == 0 {
		return
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", topic, "partitions", partitions)
}

func (k *Kafka) Enqueue(ctx context.Context, op models.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	key := []byte(op.UserID + ":" + op.Type)
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: payload,
	})
}

func (k *Kafka) Size(ctx context.Context) (int64, error) {
	client := &kafka.Client{Addr: kafka.TCP(k.brokers...)}

	meta, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{k.topic}})
	if err != nil {
		return 0, err
	}
	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != k.topic {
			continue
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return 0, nil
	}

	offsetReqs := make([]kafka.OffsetRequest, 0, len(partitions))
	for _, p := range partitions {
		offsetReqs = append(offsetReqs, kafka.LastOffsetOf(p))
	}
	listResp, err := client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{k.topic: offsetReqs},
	})
	if err != nil {
		return 0, err
	}
	last := make(map[int]int64, len(partitions))
	for _, po := range listResp.Topics[k.topic] {
		if po.Error != nil {
			continue
		}
		last[po.Partition] = po.LastOffset
	}

	fetchResp, err := client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: k.groupID,
		Topics:  map[string][]int{k.topic: partitions},
	})
	if err != nil {
		return 0, err
	}
	committed := make(map[int]int64, len(partitions))
	for _, po := range fetchResp.Topics[k.topic] {
		committed[po.Partition] = po.CommittedOffset
	}

	var pending int64
	for p, lastOffset := range last {
		c := committed[p]
		if c < 0 {
			c = 0
		}
		if lastOffset > c {
			pending += lastOffset - c
		}
	}
	return pending, nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
