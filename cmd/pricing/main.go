package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-isme/toko-pricing/internal/app"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pricing",
		Short:        "Price carts against the catalog, pricing rules and coupons",
		SilenceUsage: true,
	}
	root.AddCommand(newQuoteCmd(), newSettleCmd())
	return root
}

func newQuoteCmd() *cobra.Command {
	var (
		cartPath string
		code     string
		userID   string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute the price breakdown for a cart document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readCart(cmd.InOrStdin(), cartPath)
			if err != nil {
				return err
			}
			if code != "" {
				req.Code = code
			}
			if userID != "" {
				req.UserID = userID
			}
			return run(cmd.Context(), func(ctx context.Context, deps *app.Dependencies) error {
				res, err := deps.Quote(ctx, req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	cmd.Flags().StringVarP(&cartPath, "cart", "f", "-", "cart JSON document, - for stdin")
	cmd.Flags().StringVar(&code, "code", "", "coupon code, overrides the cart document")
	cmd.Flags().StringVar(&userID, "user", "", "user id, overrides the cart document")
	return cmd
}

func newSettleCmd() *cobra.Command {
	var code, userID, orderID string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Record a coupon redemption for a committed order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" || orderID == "" {
				return errors.New("--code and --order are required")
			}
			return run(cmd.Context(), func(ctx context.Context, deps *app.Dependencies) error {
				counted, err := deps.Settle(ctx, code, userID, orderID)
				if err != nil {
					return err
				}
				deps.Logger.Info().
					Str("code", code).
					Str("user_id", userID).
					Str("order_id", orderID).
					Bool("counted", counted).
					Msg("voucher_settled")
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "counted=%t\n", counted)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "coupon code")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&orderID, "order", "", "committed order id")
	return cmd
}

// run loads configuration, wires dependencies and executes fn, flushing
// metrics and tracing on the way out.
func run(ctx context.Context, fn func(context.Context, *app.Dependencies) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.EnableTracing,
		ServiceName:   "toko-pricing",
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.TracingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("initialise dependencies")
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	runErr := fn(ctx, deps)
	if err := deps.FlushMetrics(); err != nil {
		logger.Error().Err(err).Str("path", cfg.MetricsTextfile).Msg("write metrics textfile")
	}
	return runErr
}

func readCart(stdin io.Reader, path string) (app.CartRequest, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return app.CartRequest{}, fmt.Errorf("open cart: %w", err)
		}
		defer f.Close()
		r = f
	}
	var req app.CartRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return app.CartRequest{}, fmt.Errorf("decode cart: %w", err)
	}
	return req, nil
}
