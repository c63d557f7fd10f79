package workers

import (
	"context"
	"log/slog"

	"signalhub/internal/domain"
)

type ChangeListener interface {
	Run(ctx context.Context, handle func(domain.ChangeEvent))
}

type Publisher interface {
	Publish(ev domain.ChangeEvent)
}

// FeedPump forwards database change notifications to the in-process broker.
type FeedPump struct {
	listener ChangeListener
	out      Publisher
	observe  func(kind string)
	logger   *slog.Logger
}

func NewFeedPump(listener ChangeListener, out Publisher, logger *slog.Logger) *FeedPump {
	return &FeedPump{listener: listener, out: out, observe: func(string) {}, logger: logger}
}

// OnEvent is called with the event kind before each publish.
func (p *FeedPump) OnEvent(fn func(kind string)) *FeedPump {
	p.observe = fn
	return p
}

func (p *FeedPump) Run(ctx context.Context) {
	p.logger.Info("feed pump STARTED")
	p.listener.Run(ctx, func(ev domain.ChangeEvent) {
		p.observe(string(ev.Kind))
		p.out.Publish(ev)
	})
	p.logger.Info("feed pump STOPPED")
}
