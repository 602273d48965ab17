package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Options は全サブコマンド共通の設定を保持する
type Options struct {
	ConfigPath string        // 設定ファイル（YAML）のパス（空なら既定値）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	LogFormat  string        // ログ形式（text, json）
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	Headless   bool          // ヘッドレスモード（音声デバイスを使わない）
	Out        io.Writer     // 結果の出力先
}

// Request はサブコマンド固有の引数を保持する
type Request struct {
	Input        string        // フィードのファイルパスまたはURL（空なら設定のURL）
	FromCatalog  bool          // フィードの代わりにカタログから読み込む
	Since        time.Duration // カタログから読み込む期間（0は全期間）
	MinMagnitude float64       // 最小マグニチュード（0は無制限）
	Duration     float64       // 演奏時間（秒、0は設定値）
	Output       string        // render の出力WAVファイル
	Format       string        // plan の出力形式（text, json）
}

// Runner はサブコマンドの処理を実装する
type Runner interface {
	Play(ctx context.Context, opts *Options, req Request) error
	Render(ctx context.Context, opts *Options, req Request) error
	Plan(ctx context.Context, opts *Options, req Request) error
	Import(ctx context.Context, opts *Options, req Request) error
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validPlanFormat = []string{"text", "json"}
)

// NewRootCommand ルートコマンドを作成
func NewRootCommand(runner Runner) *cobra.Command {
	opts := &Options{}
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "seismosonic",
		Short: "seismosonic - 地震イベントの音響化",
		Long: `地震フィード（USGS GeoJSON）またはローカルカタログのイベントを、
指定した演奏時間に圧縮して音として再生する。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			applyEnv(cmd, opts, &timeoutSec)
			opts.Out = cmd.OutOrStdout()
			return validate(opts, timeoutSec)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "設定ファイル（YAML）のパス")
	flags.StringVarP(&opts.LogLevel, "log-level", "l", "info", "ログレベル（debug, info, warn, error）")
	flags.StringVar(&opts.LogFormat, "log-format", "text", "ログ形式（text, json）")
	flags.IntVarP(&timeoutSec, "timeout", "t", 0, "タイムアウト時間（秒）")
	flags.BoolVar(&opts.Headless, "headless", false, "ヘッドレスモード（音声デバイスを使わない）")

	cmd.AddCommand(newPlayCommand(runner, opts))
	cmd.AddCommand(newRenderCommand(runner, opts))
	cmd.AddCommand(newPlanCommand(runner, opts))
	cmd.AddCommand(newImportCommand(runner, opts))

	return cmd
}

// Execute 引数を解析してサブコマンドを実行する
func Execute(ctx context.Context, runner Runner, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand(runner)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// addSourceFlags イベント取得元に関するフラグを追加
func addSourceFlags(cmd *cobra.Command, req *Request) {
	cmd.Flags().BoolVar(&req.FromCatalog, "catalog", false, "フィードの代わりにカタログから読み込む")
	cmd.Flags().DurationVar(&req.Since, "since", 0, "カタログから読み込む期間（例: 24h）")
	cmd.Flags().Float64Var(&req.MinMagnitude, "min-mag", 0, "最小マグニチュード")
	cmd.Flags().Float64VarP(&req.Duration, "duration", "d", 0, "演奏時間（秒）")
}

func newPlayCommand(runner Runner, opts *Options) *cobra.Command {
	req := &Request{}
	cmd := &cobra.Command{
		Use:   "play [feed]",
		Short: "イベントをリアルタイムで再生",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Input = firstArg(args)
			return runner.Play(cmd.Context(), opts, *req)
		},
	}
	addSourceFlags(cmd, req)
	return cmd
}

func newRenderCommand(runner Runner, opts *Options) *cobra.Command {
	req := &Request{}
	cmd := &cobra.Command{
		Use:   "render [feed]",
		Short: "演奏をWAVファイルに書き出す",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Input = firstArg(args)
			if req.Output == "" {
				return fmt.Errorf("output file is required (--output)")
			}
			return runner.Render(cmd.Context(), opts, *req)
		},
	}
	addSourceFlags(cmd, req)
	cmd.Flags().StringVarP(&req.Output, "output", "o", "", "出力WAVファイル")
	return cmd
}

func newPlanCommand(runner Runner, opts *Options) *cobra.Command {
	req := &Request{}
	cmd := &cobra.Command{
		Use:   "plan [feed]",
		Short: "演奏スケジュールを表示（音は出さない）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Input = firstArg(args)
			if !slices.Contains(validPlanFormat, req.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", req.Format, validPlanFormat)
			}
			return runner.Plan(cmd.Context(), opts, *req)
		},
	}
	addSourceFlags(cmd, req)
	cmd.Flags().StringVarP(&req.Format, "format", "f", "text", "出力形式（text, json）")
	return cmd
}

func newImportCommand(runner Runner, opts *Options) *cobra.Command {
	req := &Request{}
	cmd := &cobra.Command{
		Use:   "import [feed]",
		Short: "フィードをカタログに取り込む",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Input = firstArg(args)
			return runner.Import(cmd.Context(), opts, *req)
		},
	}
	cmd.Flags().Float64Var(&req.MinMagnitude, "min-mag", 0, "最小マグニチュード")
	return cmd
}

// applyEnv 環境変数から設定を読み込む（コマンドラインフラグが優先）
func applyEnv(cmd *cobra.Command, opts *Options, timeoutSec *int) {
	flags := cmd.Flags()

	if !flags.Changed("headless") {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			opts.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	if !flags.Changed("timeout") {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				*timeoutSec = t
			}
		}
	}

	if !flags.Changed("log-level") {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			opts.LogLevel = strings.ToLower(logLevelEnv)
		}
	}
}

// validate 共通設定の検証
func validate(opts *Options, timeoutSec int) error {
	if timeoutSec < 0 {
		return fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	opts.Timeout = time.Duration(timeoutSec) * time.Second

	if !slices.Contains(validLogLevels, opts.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", opts.LogLevel)
	}
	if !slices.Contains(validLogFormats, opts.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be text or json)", opts.LogFormat)
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
