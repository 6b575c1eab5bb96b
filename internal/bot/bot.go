package bot

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/afeedhshaji/mobai-relay/internal/bot/message"
	"github.com/afeedhshaji/mobai-relay/internal/signal"
	"github.com/afeedhshaji/mobai-relay/pkg/deduper"
	"github.com/afeedhshaji/mobai-relay/pkg/llm"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BusyReply is sent back when the assistant has no free slot.
const BusyReply = "I'm busy right now, please try again in a moment."

// maxHandlers bounds the goroutines started per poll. The responder bounds
// the upstream calls on its own.
const maxHandlers = 16

// Messenger is the part of the Signal client the bot needs.
type Messenger interface {
	ReceiveEvents(ctx context.Context) ([]signal.Envelope, error)
	GroupPublicID(ctx context.Context, internalID string) (string, error)
	SendMessage(ctx context.Context, to, message string) error
}

type Bot struct {
	messenger    Messenger
	responder    llm.Responder
	pollInterval time.Duration
	deduper      *deduper.Deduper
	botNumber    string
	botUUID      string
}

func New(messenger Messenger, responder llm.Responder, pollInterval time.Duration,
	deduper *deduper.Deduper, botNumber, botUUID string) *Bot {
	return &Bot{
		messenger:    messenger,
		responder:    responder,
		pollInterval: pollInterval,
		deduper:      deduper,
		botNumber:    botNumber,
		botUUID:      botUUID,
	}
}

// Start polls for messages until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	log.Info().Str("number", b.botNumber).Dur("interval", b.pollInterval).Msg("Starting Signal relay")
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.handleMessages(ctx)
		case <-ctx.Done():
			log.Info().Msg("Signal relay stopped")
			return
		}
	}
}

// handleMessages fetches new events and answers the relevant ones
// concurrently, returning once all of them are handled.
func (b *Bot) handleMessages(ctx context.Context) {
	events, err := b.messenger.ReceiveEvents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error receiving events")
		return
	}

	var g errgroup.Group
	g.SetLimit(maxHandlers)
	for i := range events {
		ev := &events[i]
		hash := eventHash(ev)
		if b.deduper.Seen(hash) {
			log.Debug().Str("hash", hash).Msg("Skipping duplicate event")
			continue
		}

		msg := message.Extract(ev, b.botNumber, b.botUUID)
		if !msg.ShouldRelay() {
			continue
		}

		g.Go(func() error {
			if err := b.relay(ctx, msg); err != nil {
				log.Error().Err(err).Str("target", message.TargetLabel(msg)).Msg("Relay failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// relay sends one message through the responder and posts the answer back
// where it came from.
func (b *Bot) relay(ctx context.Context, msg message.Message) error {
	log.Info().Str("target", message.TargetLabel(msg)).Str("text", msg.CleanText).Msg("Relaying message")

	to, err := b.recipient(ctx, msg)
	if err != nil {
		return err
	}

	reply, err := b.responder.Reply(ctx, msg.Prompt())
	switch {
	case llm.IsServerBusy(err):
		reply = BusyReply
	case err != nil:
		return err
	case reply == "":
		log.Warn().Str("target", message.TargetLabel(msg)).Msg("Empty reply, nothing to send")
		return nil
	}

	return b.messenger.SendMessage(ctx, to, reply)
}

func (b *Bot) recipient(ctx context.Context, msg message.Message) (string, error) {
	if !msg.Direct() {
		return b.messenger.GroupPublicID(ctx, msg.GroupID)
	}
	if msg.SourceNumber != "" {
		return msg.SourceNumber, nil
	}
	return msg.SourceUUID, nil
}

func eventHash(ev *signal.Envelope) string {
	evb, _ := json.Marshal(ev)
	sum := sha1.Sum(evb)
	return hex.EncodeToString(sum[:])
}
