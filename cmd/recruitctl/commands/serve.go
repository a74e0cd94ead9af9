package commands

import (
	"context"
	"errors"
	"time"

	"RecruitChain/internal/api"
	xerrors "RecruitChain/internal/errors"
	"RecruitChain/internal/session"
	"RecruitChain/pkg/logger"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		address string
		retryIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the session and serve its status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if address == "" {
				address = cfg.Server.Address
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			server := api.NewServer(address, a.session, a.recorder, a.metrics,
				api.WithToken(cfg.Server.ResolveToken()),
				api.WithRateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst))
			return serveWhileInitializing(cmd.Context(),
				func(ctx context.Context) error { return initializeUntilReady(ctx, a.session, retryIn) },
				server.Start)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (default server.address)")
	cmd.Flags().DurationVar(&retryIn, "retry-interval", 15*time.Second, "delay between failed initialization attempts, 0 disables retry")
	return cmd
}

// serveWhileInitializing runs initialize in the background while serve blocks.
// When serve returns, initialize is cancelled and awaited, so the caller can
// release the provider afterwards.
func serveWhileInitializing(ctx context.Context, initialize, serve func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := initialize(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Named("serve").Error("会话初始化失败，不再重试", "error", err)
		}
	}()

	err := serve(ctx)
	cancel()
	<-done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// initializeUntilReady 反复尝试初始化会话，直到成功、遇到不可重试的错误或上下文取消。
func initializeUntilReady(ctx context.Context, sess *session.Session, interval time.Duration) error {
	if interval <= 0 {
		return sess.Initialize(ctx)
	}
	log := logger.Named("serve")
	return retry.Do(func() error {
		return sess.Initialize(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return xerrors.RetryableError(err) || xerrors.CodeOf(err) == xerrors.CodeNoAccounts
		}),
		retry.OnRetry(func(attempt uint, err error) {
			log.Warn("会话初始化失败，稍后重试", "attempt", attempt+1, "error", err, "retry_in", interval)
		}),
	)
}
