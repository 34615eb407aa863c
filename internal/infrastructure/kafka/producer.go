package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"chainreport/internal/domain"
	"chainreport/internal/infrastructure/telemetry"
	"chainreport/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopic = "chainreport-reports"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes finished reports, one message per row followed by a
// done marker, all keyed so a run lands in order on one partition.
type Producer struct {
	writer messageWriter
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = defaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Present(ctx context.Context, report domain.Report) error {
	tracer := otel.Tracer("chainreport/kafka")
	messages := make([]kafka.Message, 0, len(report.Rows)+1)
	spans := make([]trace.Span, 0, len(report.Rows)+1)
	key := []byte(report.RunID)

	for i, row := range report.Rows {
		msgCtx, span := tracer.Start(ctx, "report.publish_row", trace.WithSpanKind(trace.SpanKindProducer))
		span.SetAttributes(
			attribute.String("report.run_id", report.RunID),
			attribute.Int("member.rank", row.Rank),
			attribute.String("member.address", row.Address),
		)
		msg := streaming.RowMessage(report, i, row)
		msg.TraceID = traceIDOf(span)

		encoded, err := p.encode(msgCtx, key, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			endSpans(spans, err)
			return err
		}
		messages = append(messages, encoded)
		spans = append(spans, span)
	}

	doneCtx, span := tracer.Start(ctx, "report.publish_done", trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("report.run_id", report.RunID),
		attribute.Int("report.rows", len(report.Rows)),
	)
	done := streaming.DoneMessage(report)
	done.TraceID = traceIDOf(span)
	encoded, err := p.encode(doneCtx, key, done)
	spans = append(spans, span)
	if err != nil {
		endSpans(spans, err)
		return err
	}
	messages = append(messages, encoded)

	err = p.writer.WriteMessages(ctx, messages...)
	endSpans(spans, err)
	return err
}

func (p *Producer) encode(ctx context.Context, key []byte, msg streaming.Message) (kafka.Message, error) {
	payload, err := streaming.Encode(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	return kafka.Message{
		Topic:   p.topic,
		Key:     key,
		Value:   payload,
		Headers: headers,
	}, nil
}

func traceIDOf(span trace.Span) string {
	spanCtx := span.SpanContext()
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}

func endSpans(spans []trace.Span, err error) {
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
