package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zurustar/seismosonic/pkg/audiograph"
	"github.com/zurustar/seismosonic/pkg/catalog"
	"github.com/zurustar/seismosonic/pkg/cli"
	"github.com/zurustar/seismosonic/pkg/config"
	"github.com/zurustar/seismosonic/pkg/feed"
	"github.com/zurustar/seismosonic/pkg/logger"
	"github.com/zurustar/seismosonic/pkg/output"
	"github.com/zurustar/seismosonic/pkg/sonify"
)

// feedTimeout フィード取得のHTTPタイムアウト
const feedTimeout = 30 * time.Second

// SinkFactory 設定に応じた音声出力先を作成する
type SinkFactory func(cfg *config.Config, headless bool) (audiograph.Sink, error)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	log     *slog.Logger
	logOut  io.Writer
	newSink SinkFactory
	now     func() time.Time
	lang    language.Tag
}

// New Applicationを作成
func New() *Application {
	return &Application{
		log:     logger.GetLogger(),
		logOut:  os.Stderr,
		newSink: DefaultSink,
		now:     time.Now,
		lang:    languageFromEnv(),
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// Ctrl+C で再生を止めてから終了する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, app, args, os.Stdout, os.Stderr)
}

// DefaultSink ヘッドレスモードでは実時間で空読みするシンク、それ以外はEbitengineのシンク
func DefaultSink(cfg *config.Config, headless bool) (audiograph.Sink, error) {
	if headless {
		return output.NewPacedSink(cfg.Output.SampleRate, output.DefaultPaceInterval), nil
	}
	bufferSize := time.Duration(cfg.Output.BufferMs) * time.Millisecond
	return output.NewEbitenSink(cfg.Output.SampleRate, bufferSize)
}

// setup ロガーの初期化と設定ファイルの読み込み
func (app *Application) setup(opts *cli.Options) (*config.Config, error) {
	if err := logger.InitLoggerWithFormat(opts.LogLevel, opts.LogFormat, app.logOut); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()

	if opts.ConfigPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.log.Debug("Config loaded", "path", opts.ConfigPath)
	return cfg, nil
}

// loadEvents フィードまたはカタログからイベントを読み込む
func (app *Application) loadEvents(ctx context.Context, cfg *config.Config, req cli.Request) ([]sonify.Event, error) {
	minMag := req.MinMagnitude
	if minMag <= 0 {
		minMag = cfg.Feed.MinMagnitude
	}

	if req.FromCatalog {
		store, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		q := catalog.Query{MinMagnitude: minMag}
		if req.Since > 0 {
			q.Since = app.now().Add(-req.Since)
		}
		events, err := store.Events(ctx, q)
		if err != nil {
			return nil, err
		}
		app.log.Info("Events loaded from catalog", "path", cfg.Catalog.Path, "count", len(events))
		return events, nil
	}

	coll, err := app.openFeed(ctx, cfg, req)
	if err != nil {
		return nil, err
	}
	return coll.Filter(minMag).Events(), nil
}

// openFeed フィードを読み込む（引数がなければ設定のURL）
func (app *Application) openFeed(ctx context.Context, cfg *config.Config, req cli.Request) (*feed.Collection, error) {
	source := req.Input
	if source == "" {
		source = cfg.Feed.URL
	}

	coll, err := feed.NewClient(feedTimeout).Open(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	app.log.Info("Feed loaded", "source", source, "title", coll.Title, "count", len(coll.Features))
	return coll, nil
}

// engineOptions 設定とリクエストからエンジンのオプションを組み立てる
func (app *Application) engineOptions(cfg *config.Config, req cli.Request, extra ...sonify.Option) []sonify.Option {
	opts := []sonify.Option{
		sonify.WithLogger(app.log),
		sonify.WithSettings(cfg.Settings()),
		sonify.WithDuration(req.Duration),
	}
	return append(opts, extra...)
}

// printer 要約表示用のプリンタ
func (app *Application) printer() *message.Printer {
	return message.NewPrinter(app.lang)
}

// languageFromEnv LANG環境変数から言語タグを決める（例: ja_JP.UTF-8 → ja-JP）
func languageFromEnv() language.Tag {
	lang := os.Getenv("LANG")
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" || lang == "C" || lang == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	return tag
}
