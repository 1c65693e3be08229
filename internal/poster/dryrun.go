package poster

import (
	"context"
	"fmt"
	"sync/atomic"

	logx "autopost/pkg/logx"
)

// LogPublisher logs created posts instead of writing them anywhere. It is
// the default publisher so the binary runs end to end before a real
// downstream integration is configured.
type LogPublisher struct {
	log logx.Logger
	seq atomic.Int64
}

func NewLogPublisher(log logx.Logger) *LogPublisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Create(_ context.Context, item RawItem, ch Channel) (string, error) {
	id := fmt.Sprintf("dry-%d", p.seq.Add(1))
	p.log.Info("post created (dry run)",
		logx.String("channel", ch.ID),
		logx.String("post_id", id),
		logx.String("status", ch.PostStatus),
		logx.String("title", item.Title),
		logx.String("link", item.Link))
	return id, nil
}
