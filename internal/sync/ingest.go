package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// Journal is the message store the ingester writes to.
type Journal interface {
	RecordMessage(ctx context.Context, m *store.Message, chatName string, isGroup bool) error
	RecordHistory(ctx context.Context, batch store.HistoryBatch) error
}

// Ingester journals inbound WhatsApp traffic. It subscribes to "wa.*"
// events on the bus; writes are idempotent, so redelivered messages and
// overlapping history batches are harmless.
type Ingester struct {
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewIngester creates an ingester. Call Start to begin consuming events.
func NewIngester(journal Journal, b *bus.Bus, logger *zap.Logger) *Ingester {
	return &Ingester{
		journal: journal,
		bus:     b,
		logger:  logger,
	}
}

// Start subscribes to inbound WhatsApp events on the bus.
func (i *Ingester) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})
	ch, unsub := i.bus.Subscribe("wa.", 256)

	go func() {
		defer close(i.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				i.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops consuming and waits for the in-flight write to finish.
func (i *Ingester) Stop() {
	if i.cancel == nil {
		return
	}
	i.cancel()
	<-i.done
	if n := i.bus.Dropped("wa."); n > 0 {
		i.logger.Warn("inbound events dropped while ingesting", zap.Int("count", n))
	}
}

func (i *Ingester) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessage:
		live, ok := evt.Payload.(wa.LiveMessage)
		if !ok || live.Message == nil {
			return
		}
		if err := i.IngestMessage(ctx, live); err != nil {
			i.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", live.Message.MsgID))
		}
	case bus.KindHistorySync:
		batch, ok := evt.Payload.(store.HistoryBatch)
		if !ok {
			return
		}
		if err := i.IngestHistory(ctx, batch); err != nil {
			i.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(batch.Messages)))
		} else {
			i.logger.Info("history batch ingested",
				zap.Int("chats", len(batch.Chats)),
				zap.Int("messages", len(batch.Messages)),
			)
		}
	}
}

// IngestMessage journals a single live message.
func (i *Ingester) IngestMessage(ctx context.Context, live wa.LiveMessage) error {
	if err := i.journal.RecordMessage(ctx, live.Message, live.ChatName, live.IsGroup); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// IngestHistory journals a history-sync batch in one transaction.
func (i *Ingester) IngestHistory(ctx context.Context, batch store.HistoryBatch) error {
	if len(batch.Chats) == 0 && len(batch.Messages) == 0 {
		return nil
	}
	if err := i.journal.RecordHistory(ctx, batch); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}
