package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/mengysun/DataParasite/internal/config"
)

// kafkaExporter publishes one JSON message per record, keyed by run and
// position so a replayed run lands on the same partitions.
type kafkaExporter struct {
	writer *kafka.Writer
}

func newKafka(spec config.ExportSpec) *kafkaExporter {
	return &kafkaExporter{writer: &kafka.Writer{
		Addr:         kafka.TCP(spec.Brokers...),
		Topic:        spec.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (e *kafkaExporter) Export(ctx context.Context, run Run) error {
	if len(run.Records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(run.Records))
	for i, rec := range run.Records {
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("export: encode record %d: %w", i, err)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(recordKey(run.ID, i)),
			Value: value,
		}
	}
	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("export: write messages: %w", err)
	}
	log.Printf("Exported %d records to kafka topic %s", len(msgs), e.writer.Topic)
	return nil
}

func (e *kafkaExporter) Close() error { return e.writer.Close() }

// recordKey is zero-padded so lexicographic order matches sink order.
func recordKey(runID string, i int) string {
	return fmt.Sprintf("%s-%06d", runID, i)
}
