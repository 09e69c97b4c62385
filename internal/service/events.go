// events.go — приёмники событий прогона.
// Правила ничего не логируют сами: всё наблюдаемое поведение прогона
// проходит через EventSink, переданный в Verifier.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/domain/runstate"
)

// EventKind — тип события прогона.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventTransition      EventKind = "transition"
	EventBlacklistMerged EventKind = "blacklist_merged"
	EventReason          EventKind = "reason"
	EventRunCompleted    EventKind = "run_completed"
	EventRunFailed       EventKind = "run_failed"
)

// Event — одно событие прогона. Заполняются только поля, относящиеся к Kind.
type Event struct {
	RunID    string         `json:"run_id"`
	Kind     EventKind      `json:"kind"`
	At       time.Time      `json:"at"`
	Username string         `json:"username,omitempty"`
	UserID   int64          `json:"user_id,omitempty"`
	From     runstate.State `json:"from,omitempty"`
	To       runstate.State `json:"to,omitempty"`
	Rule     string         `json:"rule,omitempty"`
	Severity string         `json:"severity,omitempty"`
	Message  string         `json:"message,omitempty"`
	Outcome  string         `json:"outcome,omitempty"`
	Added    int            `json:"added,omitempty"`
	Status   model.Status   `json:"status,omitempty"`
	Report   *model.Report  `json:"report,omitempty"`
}

// EventSink — получатель событий прогона. Emit не должен блокировать прогон надолго
// и не возвращает ошибок: сбой приёмника не влияет на результат проверки.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// NopSink — приёмник, отбрасывающий события.
type NopSink struct{}

// Emit ничего не делает.
func (NopSink) Emit(context.Context, Event) {}

// MultiSink рассылает событие во все приёмники по порядку.
type MultiSink []EventSink

// Emit передаёт событие каждому приёмнику.
func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// SlogSink пишет события в структурированный лог.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink создаёт приёмник поверх logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With(slog.String("component", "verification"))}
}

// Emit пишет событие: завершение и отказы — Info, сбои — Warn, остальное — Debug.
func (s *SlogSink) Emit(ctx context.Context, e Event) {
	attrs := []slog.Attr{
		slog.String("run_id", e.RunID),
		slog.String("kind", string(e.Kind)),
	}
	if e.Username != "" {
		attrs = append(attrs, slog.String("username", e.Username))
	}
	if e.UserID != 0 {
		attrs = append(attrs, slog.Int64("user_id", e.UserID))
	}

	switch e.Kind {
	case EventTransition:
		attrs = append(attrs, slog.String("from", string(e.From)), slog.String("to", string(e.To)))
		s.logger.LogAttrs(ctx, slog.LevelDebug, "Переход состояния прогона", attrs...)
	case EventBlacklistMerged:
		attrs = append(attrs, slog.String("outcome", e.Outcome), slog.Int("added", e.Added))
		if e.Message != "" {
			attrs = append(attrs, slog.String("error", e.Message))
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "Дополнительный чёрный список обработан", attrs...)
	case EventReason:
		attrs = append(attrs,
			slog.String("rule", e.Rule),
			slog.String("severity", e.Severity),
			slog.String("reason", e.Message),
		)
		s.logger.LogAttrs(ctx, slog.LevelDebug, "Сработало правило", attrs...)
	case EventRunCompleted:
		attrs = append(attrs, slog.String("status", string(e.Status)))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "Проверка завершена", attrs...)
	case EventRunFailed:
		attrs = append(attrs, slog.String("state", string(e.To)), slog.String("error", e.Message))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "Проверка прервана", attrs...)
	default:
		s.logger.LogAttrs(ctx, slog.LevelDebug, "Событие прогона", attrs...)
	}
}

// messageWriter — часть kafka.Writer, нужная KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink публикует завершённые прогоны в Kafka (ключ — run_id).
// Промежуточные события не публикуются.
type KafkaSink struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaSink создаёт приёмник. brokers не может быть пустым.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: не указан ни один брокер")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: не указан топик")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, topic, logger), nil
}

func newKafkaSink(w messageWriter, topic string, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:  w,
		topic:   topic,
		timeout: 5 * time.Second,
		logger:  logger.With(slog.String("component", "kafka_sink")),
	}
}

// Emit публикует событие run_completed. Ошибка публикации только логируется.
func (k *KafkaSink) Emit(ctx context.Context, e Event) {
	if e.Kind != EventRunCompleted {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		k.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}

	// Отмена запроса клиентом не должна терять уже вычисленный результат
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(e.RunID),
		Value: payload,
		Time:  e.At,
	}); err != nil {
		k.logger.Warn("Не удалось опубликовать результат проверки",
			slog.String("run_id", e.RunID),
			slog.String("topic", k.topic),
			slog.String("error", err.Error()),
		)
	}
}

// Close закрывает writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
