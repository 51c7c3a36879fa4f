package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/VincentDu2021/uring-sync/internal/config"
	"github.com/VincentDu2021/uring-sync/internal/engine"
	"github.com/VincentDu2021/uring-sync/internal/netcopy"
	"github.com/VincentDu2021/uring-sync/internal/sizeparse"
	"github.com/VincentDu2021/uring-sync/internal/stats"
	"github.com/VincentDu2021/uring-sync/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd()
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newRecvCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok { //nolint:errorlint // sentinel carries an exit code, not chained
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func newRootCmd() *cobra.Command {
	var (
		workers     int
		ringDepth   uint32
		chunkSizeS  string
		verbose     bool
		quiet       bool
		noSplice    bool
		syncFlag    bool
		bwLimitS    string
		verifyFlag  bool
		showVersion bool
		logFile     string
	)

	cmd := &cobra.Command{
		Use:   "uringsync [flags] <source> <destination>",
		Short: "Async io_uring-backed file-tree replicator",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "uringsync %s\n", version)
				return nil
			}

			cfgFile, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyRootDefaults(cmd, cfgFile.Defaults, &verifyFlag, &workers, &ringDepth, &chunkSizeS, &noSplice, &syncFlag, &bwLimitS)

			logger, closeLog, err := newLogger(verbose, quiet, logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(logger)

			if workers <= 0 {
				workers = min(runtime.NumCPU()*2, 32)
			}

			var chunkSize int64
			if chunkSizeS != "" {
				chunkSize, err = sizeparse.ParseSize(chunkSizeS)
				if err != nil {
					return fmt.Errorf("invalid --chunk-size: %w", err)
				}
				if !engine.IsPowerOfTwo(chunkSize) {
					return fmt.Errorf("invalid --chunk-size: %s is not a power of two", chunkSizeS)
				}
			}

			var bwLimit int64
			if bwLimitS != "" {
				bwLimit, err = sizeparse.ParseSize(bwLimitS)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()

			engineCfg := engine.Config{
				SrcRoot:            args[0],
				DstRoot:            args[1],
				Workers:            workers,
				RingDepth:          ringDepth,
				ChunkSizeBytes:     chunkSize,
				UseSplice:          !noSplice,
				ForceSync:          syncFlag,
				BWLimitBytesPerSec: bwLimit,
				Verify:             verifyFlag,
				Stats:              collector,
				Logger:             logger,
			}

			presenter := ui.NewPresenter(ui.Config{
				Writer:    os.Stdout,
				ErrWriter: os.Stderr,
				Quiet:     quiet,
				Verbose:   verbose,
				Stats:     collector,
				DstRoot:   args[1],
				Workers:   workers,
			})

			result := runCopy(ctx, engineCfg, presenter)
			stop()

			if !quiet {
				if s := presenter.Summary(); s != "" {
					fmt.Fprintln(os.Stderr, s)
				}
			}

			if result.Err != nil {
				slog.Error("copy failed", "error", result.Err)
				return &exitError{code: 1}
			}
			if result.Stats.FilesFailed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "number of copy workers (default: min(NumCPU*2, 32))")
	cmd.Flags().Uint32Var(&ringDepth, "ring-depth", 256, "io_uring submission queue depth")
	cmd.Flags().StringVar(&chunkSizeS, "chunk-size", "", "override the auto-tuned chunk size (e.g. 256K, 1M)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except warnings and errors")
	cmd.Flags().BoolVar(&noSplice, "no-splice", false, "disable splice, always copy through a buffer")
	cmd.Flags().BoolVar(&syncFlag, "sync", false, "use the synchronous fallback even where io_uring is available")
	cmd.Flags().StringVar(&bwLimitS, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "verify checksums after copy (BLAKE3)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "also write JSON-formatted logs to this file")

	return cmd
}

func runCopy(ctx context.Context, cfg engine.Config, presenter ui.Presenter) engine.Result {
	events := make(chan ui.Event)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = presenter.Run(events) //nolint:errcheck // presenter error is non-fatal
	}()

	result := engine.Run(ctx, cfg)
	close(events)
	wg.Wait()
	return result
}

func newSendCmd() *cobra.Command {
	var (
		secret   string
		useSplic bool
		useTLS   bool
		bwLimitS string
		verbose  bool
		logFile  string
	)

	cmd := &cobra.Command{
		Use:   "send <source> <host:port>",
		Short: "Send a file or directory tree to a listening receiver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useTLS && secret == "" {
				return fmt.Errorf("--tls requires --secret")
			}

			logger, closeLog, err := newLogger(verbose, false, logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			logger = logger.With("session", uuid.NewString())
			slog.SetDefault(logger)

			var bwLimit int64
			if bwLimitS != "" {
				var err error
				bwLimit, err = sizeparse.ParseSize(bwLimitS)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			result, err := netcopy.Send(netcopy.SenderConfig{
				SrcPath:            args[0],
				Addr:               args[1],
				Secret:             secret,
				UseSplice:          useSplic,
				UseTLS:             useTLS,
				BWLimitBytesPerSec: bwLimit,
				Logger:             logger,
			})
			if err != nil {
				return err
			}
			logger.Info("transfer complete", "files", result.FilesSent, "bytes", result.BytesSent)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "pre-shared secret for receiver authentication")
	cmd.Flags().BoolVar(&useSplic, "splice", false, "use zero-copy splice instead of read/send")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "enable kTLS transport encryption (requires --secret)")
	cmd.Flags().StringVar(&bwLimitS, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().StringVar(&logFile, "log-file", "", "also write JSON-formatted logs to this file")

	return cmd
}

func newRecvCmd() *cobra.Command {
	var (
		secret  string
		port    int
		useTLS  bool
		verbose bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "recv <destination>",
		Short: "Listen for and receive a file or directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				return fmt.Errorf("--listen is required")
			}
			if useTLS && secret == "" {
				return fmt.Errorf("--tls requires --secret")
			}

			logger, closeLog, err := newLogger(verbose, false, logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			logger = logger.With("session", uuid.NewString())
			slog.SetDefault(logger)

			result, err := netcopy.Receive(netcopy.ReceiverConfig{
				DstPath: args[0],
				Port:    port,
				Secret:  secret,
				UseTLS:  useTLS,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			logger.Info("transfer complete", "files", result.FilesReceived, "bytes", result.BytesReceived)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "pre-shared secret required from senders")
	cmd.Flags().IntVar(&port, "listen", 0, "TCP port to listen on")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "enable kTLS transport encryption (requires --secret)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().StringVar(&logFile, "log-file", "", "also write JSON-formatted logs to this file")

	return cmd
}

func newLogger(verbose, quiet bool, logFile string) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logFile == "" {
		return slog.New(textHandler), func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open --log-file: %w", err)
	}
	jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(ui.NewMultiHandler(textHandler, jsonHandler))
	return logger, func() { f.Close() }, nil //nolint:errcheck // best-effort close on exit
}

func applyRootDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	verify *bool,
	workers *int,
	ringDepth *uint32,
	chunkSize *string,
	noSplice *bool,
	syncFlag *bool,
	bwLimit *string,
) {
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		*verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("ring-depth") && defaults.RingDepth != nil {
		*ringDepth = uint32(*defaults.RingDepth) //nolint:gosec // G115: config-supplied depth, not attacker controlled
	}
	if !cmd.Flags().Changed("chunk-size") && defaults.ChunkSize != nil {
		*chunkSize = *defaults.ChunkSize
	}
	if !cmd.Flags().Changed("no-splice") && defaults.Splice != nil {
		*noSplice = !*defaults.Splice
	}
	if !cmd.Flags().Changed("sync") && defaults.Sync != nil {
		*syncFlag = *defaults.Sync
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		*bwLimit = *defaults.BWLimit
	}
}
