package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"golang.org/x/text/message"

	"github.com/zurustar/seismosonic/pkg/audiograph"
	"github.com/zurustar/seismosonic/pkg/catalog"
	"github.com/zurustar/seismosonic/pkg/cli"
	"github.com/zurustar/seismosonic/pkg/output"
	"github.com/zurustar/seismosonic/pkg/sonify"
)

// pollInterval 再生終了を確認する間隔
const pollInterval = 50 * time.Millisecond

// Play イベントをリアルタイムで再生する
// タイムアウトまたは割り込みで停止し、フェードアウトを待ってから終了する
func (app *Application) Play(ctx context.Context, opts *cli.Options, req cli.Request) error {
	cfg, err := app.setup(opts)
	if err != nil {
		return err
	}
	events, err := app.loadEvents(ctx, cfg, req)
	if err != nil {
		return err
	}

	sink, err := app.newSink(cfg, opts.Headless)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	ac := audiograph.NewContext(cfg.Output.SampleRate, sink)

	p := app.printer()
	announce := newAnnouncer(p, opts.Out)
	engine := sonify.New(ac, app.engineOptions(cfg, req, sonify.WithEventCallback(announce.event))...)
	defer func() {
		if err := engine.Close(); err != nil {
			app.log.Warn("Failed to close engine", "error", err)
		}
	}()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	engine.SetEvents(events)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	if !engine.Playing() {
		p.Fprintf(opts.Out, "No events to play\n")
		return nil
	}

	settings := engine.Settings()
	start := app.now()
	if waitPlayback(ctx, engine) {
		// 自然終了: ドローンのフェードアウトを待つ
		sleepContext(ctx, seconds(settings.EndFadeSec))
	} else {
		app.log.Info("Playback interrupted", "reason", context.Cause(ctx))
		engine.Stop()
		time.Sleep(seconds(settings.StopFadeSec))
	}

	p.Fprintf(opts.Out, "Played %d events in %.1f seconds\n", len(events), app.now().Sub(start).Seconds())
	return nil
}

// Render 演奏をオフラインでWAVファイルに書き出す
func (app *Application) Render(ctx context.Context, opts *cli.Options, req cli.Request) error {
	cfg, err := app.setup(opts)
	if err != nil {
		return err
	}
	events, err := app.loadEvents(ctx, cfg, req)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events to render")
	}

	ac := audiograph.NewContext(cfg.Output.SampleRate, nil)
	engine := sonify.New(ac, app.engineOptions(cfg, req,
		sonify.WithTimers(sonify.ClockTimers(ac)),
		sonify.WithEventCallback(func(index int, ev sonify.Event) {
			app.log.Debug("Event sounded", "index", index, "place", ev.Place, "clock", ac.CurrentTime())
		}),
	)...)
	defer engine.Close()

	engine.SetEvents(events)
	sched := engine.Plan()
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start render: %w", err)
	}
	total := sched.EndAt + engine.Settings().EndFadeSec

	f, err := os.Create(req.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	frames, err := output.RenderWAV(f, ac, total)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	app.log.Info("Render finished", "path", req.Output, "frames", frames, "stats", engine.Stats())
	app.printer().Fprintf(opts.Out, "Rendered %d events to %s (%.2f seconds, %d frames)\n",
		len(events), req.Output, total, frames)
	return nil
}

// Plan 演奏スケジュールを表示する（音声は生成しない）
func (app *Application) Plan(ctx context.Context, opts *cli.Options, req cli.Request) error {
	cfg, err := app.setup(opts)
	if err != nil {
		return err
	}
	events, err := app.loadEvents(ctx, cfg, req)
	if err != nil {
		return err
	}

	engine := sonify.New(nil, app.engineOptions(cfg, req)...)
	engine.SetEvents(events)
	sched := engine.Plan()

	switch req.Format {
	case "json":
		enc := json.NewEncoder(opts.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sched); err != nil {
			return fmt.Errorf("failed to encode schedule: %w", err)
		}
		return nil
	default:
		return sched.WriteText(opts.Out)
	}
}

// Import フィードをカタログに取り込む
func (app *Application) Import(ctx context.Context, opts *cli.Options, req cli.Request) error {
	cfg, err := app.setup(opts)
	if err != nil {
		return err
	}
	coll, err := app.openFeed(ctx, cfg, req)
	if err != nil {
		return err
	}

	minMag := req.MinMagnitude
	if minMag <= 0 {
		minMag = cfg.Feed.MinMagnitude
	}
	coll = coll.Filter(minMag)

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	source := req.Input
	if source == "" {
		source = cfg.Feed.URL
	}
	batch, err := store.Import(ctx, source, coll.Features)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}

	app.log.Info("Feed imported", "batch", batch.ID, "inserted", batch.Inserted, "updated", batch.Updated)
	app.printer().Fprintf(opts.Out, "Imported %d new and %d updated events (%d in catalog)\n",
		batch.Inserted, batch.Updated, total)
	return nil
}

// announcer 再生中のイベントを1行ずつ表示する
type announcer struct {
	mu  sync.Mutex
	p   *message.Printer
	out io.Writer
}

func newAnnouncer(p *message.Printer, out io.Writer) *announcer {
	return &announcer{p: p, out: out}
}

func (a *announcer) event(index int, ev sonify.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mag := "M?"
	if !math.IsNaN(ev.Magnitude) {
		mag = a.p.Sprintf("M%.1f", ev.Magnitude)
	}
	a.p.Fprintf(a.out, "%4d  %-5s %s  %s\n", index, mag, ev.OccurredAt().Format(time.RFC3339), ev.Place)
}

// waitPlayback 再生が自然終了したらtrue、ctxが終了したらfalseを返す
func waitPlayback(ctx context.Context, engine *sonify.Engine) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if !engine.Playing() {
				return true
			}
		}
	}
}

// sleepContext d だけ待つ（ctx終了で打ち切る）
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
