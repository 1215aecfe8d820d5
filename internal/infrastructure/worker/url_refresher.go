package worker

import (
	"context"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/infrastructure/config"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var _ application.Worker = (*URLRefresher)(nil)

// Resigner renews presigned URLs that expire within window.
type Resigner interface {
	RefreshSignedURLs(ctx context.Context, window time.Duration, limit int) (int, error)
}

// URLRefresher periodically re-signs media URLs before they expire. A pass
// also runs right after start and whenever Kick is called.
type URLRefresher struct {
	Media Resigner

	PollEvery  time.Duration
	Window     time.Duration
	BatchLimit int
	Clock      clockwork.Clock
	Log        *zap.Logger

	kick chan struct{}
}

func NewURLRefresher(media Resigner, pollEvery, window time.Duration, batchLimit int, log *zap.Logger) *URLRefresher {
	return &URLRefresher{Media: media, PollEvery: pollEvery, Window: window, BatchLimit: batchLimit, Log: log, kick: make(chan struct{}, 1)}
}

func (w *URLRefresher) defaults() {
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	if w.Clock == nil {
		w.Clock = clockwork.NewRealClock()
	}
	if w.PollEvery <= 0 {
		w.PollEvery = config.DefaultWorkerPoll
	}
	if w.Window <= 0 {
		w.Window = config.DefaultRefreshWindow
	}
	if w.BatchLimit <= 0 {
		w.BatchLimit = config.DefaultWorkerBatch
	}
	if w.kick == nil {
		w.kick = make(chan struct{}, 1)
	}
}

// Kick requests an extra pass without waiting for the next tick. It never blocks.
func (w *URLRefresher) Kick() {
	if w.kick == nil {
		return
	}
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *URLRefresher) Start(ctx context.Context) {
	w.defaults()
	log := w.Log.With(zap.String("worker", "url_refresher"))

	t := w.Clock.NewTicker(w.PollEvery)
	defer t.Stop()

	log.Info("url_refresher.started", zap.Duration("poll_every", w.PollEvery), zap.Duration("window", w.Window))
	w.tick(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("url_refresher.stopped")
			return
		case <-t.Chan():
			w.tick(ctx, log)
		case <-w.kick:
			w.tick(ctx, log)
		}
	}
}

func (w *URLRefresher) tick(ctx context.Context, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("url_refresher.panic", zap.Any("r", r))
		}
	}()
	n, err := w.Media.RefreshSignedURLs(ctx, w.Window, w.BatchLimit)
	if err != nil {
		log.Warn("url_refresher.tick_failed", zap.Int("renewed", n), zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("url_refresher.tick", zap.Int("renewed", n))
	}
}
