package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sieveio/sieve"
	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

func main() {
	root := &cobra.Command{
		Use:          "sieve",
		Short:        "Real-time chain event stream filter",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a chain for matching transactions",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("rpc", "", "HTTP JSON-RPC endpoint")
	watchCmd.Flags().String("ws", "", "WebSocket endpoint")
	watchCmd.Flags().String("chain", "ethereum", "chain tag (ethereum, optimism, base)")
	watchCmd.Flags().String("scope", "transaction", "scope (transaction, pool, header)")
	watchCmd.Flags().Uint64("min-value", 0, "minimum transaction value in wei")
	watchCmd.Flags().String("from", "", "sender address")
	watchCmd.Flags().String("to", "", "recipient address")
	watchCmd.Flags().Duration("head-poll", 2*time.Second, "head poll interval")
	watchCmd.Flags().Duration("pending-poll", 500*time.Millisecond, "pending poll interval")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type watchConfig struct {
	RPC         string
	WS          string
	Chain       string
	Scope       string
	MinValue    uint64
	From        string
	To          string
	HeadPoll    time.Duration
	PendingPoll time.Duration
	LogLevel    string
}

func loadConfig(cfgFile string, flags *pflag.FlagSet) (watchConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return watchConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return watchConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	return watchConfig{
		RPC:         v.GetString("rpc"),
		WS:          v.GetString("ws"),
		Chain:       v.GetString("chain"),
		Scope:       v.GetString("scope"),
		MinValue:    v.GetUint64("min-value"),
		From:        v.GetString("from"),
		To:          v.GetString("to"),
		HeadPoll:    v.GetDuration("head-poll"),
		PendingPoll: v.GetDuration("pending-poll"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPC == "" && cfg.WS == "" {
		return fmt.Errorf("an rpc or ws endpoint is required")
	}
	tag, err := chain.Parse(cfg.Chain)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []chain.Option{
		chain.On(tag),
		chain.HeadPollInterval(cfg.HeadPoll),
		chain.PendingPollInterval(cfg.PendingPoll),
	}
	if cfg.RPC != "" {
		opts = append(opts, chain.RPC(cfg.RPC))
	}
	if cfg.WS != "" {
		opts = append(opts, chain.WS(cfg.WS))
	}

	engine, err := sieve.Connect(ctx, []chain.Config{chain.New(opts...)}, sieve.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(shutdownCtx)
	}()

	f, err := buildFilter(tag, cfg)
	if err != nil {
		return err
	}

	s, err := engine.Subscribe(f)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info("watching",
		zap.String("chain", tag.String()),
		zap.String("scope", cfg.Scope),
		zap.Uint64("min_value", cfg.MinValue),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func buildFilter(tag chain.Chain, cfg watchConfig) (*filter.Filter, error) {
	b := filter.New().Chain(tag)
	switch cfg.Scope {
	case "pool":
		b.Pool(func(p *filter.PoolScope) {
			if cfg.MinValue > 0 {
				p.Value().Gt(weiValue(cfg.MinValue))
			}
			if cfg.From != "" {
				p.From().Exact(cfg.From)
			}
			if cfg.To != "" {
				p.To().Exact(cfg.To)
			}
			if cfg.MinValue == 0 && cfg.From == "" && cfg.To == "" {
				p.Nonce().Gte(0)
			}
		})
	case "header":
		b.BlockHeader(func(h *filter.HeaderScope) {
			h.Number().Gt(0)
		})
	default:
		b.Transaction(func(tx *filter.TxScope) {
			if cfg.MinValue > 0 {
				tx.Value().Gt(weiValue(cfg.MinValue))
			}
			if cfg.From != "" {
				tx.From().Exact(cfg.From)
			}
			if cfg.To != "" {
				tx.To().Exact(cfg.To)
			}
			if cfg.MinValue == 0 && cfg.From == "" && cfg.To == "" {
				tx.Nonce().Gte(0)
			}
		})
	}
	return b.Build()
}

func printEvent(ev sieve.Event) {
	switch ev.Kind {
	case sieve.EventItem:
		switch it := ev.Item.(type) {
		case *item.Header:
			fmt.Printf("header  %s #%d %s\n", it.Chain, it.Number, it.Hash.Hex())
		case *item.ConfirmedTx:
			fmt.Printf("tx      %s #%d idx=%d %s value=%s\n",
				it.Chain, it.BlockNumber, it.Index, it.Tx.Hash.Hex(), it.Tx.Value)
		case *item.PendingTx:
			fmt.Printf("pending %s %s value=%s\n", it.Chain, it.Tx.Hash.Hex(), it.Tx.Value)
		case *item.Log:
			fmt.Printf("log     %s #%d %s topic0=%s\n",
				it.Chain, it.BlockNumber, it.Address.Hex(), it.EventSignature().Hex())
		case *item.ReorgMarker:
			fmt.Printf("reorg   %s from=%d to=%d\n", it.Chain, it.FromNumber, it.ToNumber)
		}
	case sieve.EventError:
		fmt.Printf("error   %v\n", ev.Err)
	}
}

func weiValue(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
