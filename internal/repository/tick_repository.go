package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	pkgkafka "PairPulse/pkg/kafka"
)

const insertChunk = 2000

// ClickHouseStorage stores ticks in a MergeTree table.
type ClickHouseStorage struct {
	db     *sql.DB
	table  string
	source string
	schema []string
}

// NewClickHouseStorage binds storage to table ("db.table"). schema is run by
// Init.
func NewClickHouseStorage(db *sql.DB, table, source string, schema []string) *ClickHouseStorage {
	return &ClickHouseStorage{db: db, table: table, source: source, schema: schema}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

// StoreBatch inserts ticks with multi-row VALUES statements.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	for start := 0; start < len(ticks); start += insertChunk {
		end := min(start+insertChunk, len(ticks))
		q, args := s.insertStatement(ticks[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) insertStatement(ticks []*models.Tick) (string, []interface{}) {
	values := make([]string, 0, len(ticks))
	args := make([]interface{}, 0, len(ticks)*5)
	for _, t := range ticks {
		if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, t.Timestamp.UTC(), t.Symbol, t.Price, t.Quantity, s.source)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, quantity, source) VALUES %s", s.table, strings.Join(values, ","))
	return q, args
}

// Query returns up to limit ticks of symbol in [from, to], oldest first.
func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	if limit <= 0 {
		limit = 10000
	}
	q := fmt.Sprintf(`SELECT symbol, ts, price, quantity FROM (
    SELECT symbol, ts, price, quantity FROM %s
    WHERE symbol = ? AND ts >= ? AND ts <= ?
    ORDER BY ts DESC LIMIT ?
) ORDER BY ts ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Quantity); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseStorage) Close() error { return nil }

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher publishes ticks keyed by symbol so each symbol stays ordered
// within its partition.
type KafkaPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaPublisher(producer batchProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.PublishBatch(ctx, []*models.Tick{t})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		if t == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Symbol), Value: models.NewTickMessage(*t)})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ repository.Storage   = (*ClickHouseStorage)(nil)
	_ repository.Publisher = (*KafkaPublisher)(nil)
)
