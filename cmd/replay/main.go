// Package main re-runs a saved webhook body, or a single transaction fetched
// from RPC, through the notification pipeline. Redelivery is idempotent, so
// replaying a batch only produces what the first run missed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/app"
	"wallet-alerts/internal/config"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/ingest"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/solana"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before the environment")
	file := flag.String("file", "", "Saved webhook body to replay")
	signature := flag.String("signature", "", "Transaction signature to fetch from RPC and replay")
	decodeOnly := flag.Bool("decode-only", false, "Print decoded events as JSON without running the pipeline")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		observability.NewLogger("info").WithError(err).Fatal("load config")
	}
	log := observability.NewLogger(cfg.LogLevel).WithField("cmd", "replay")

	if (*file == "") == (*signature == "") {
		log.Fatal("exactly one of --file or --signature is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var batch *ingest.Batch
	if *file != "" {
		batch, err = loadFile(*file)
	} else {
		batch, err = fetchSignature(ctx, solana.NewHTTPClient(cfg.SolanaRPCEndpoint), *signature)
	}
	if err != nil {
		log.WithError(err).Fatal("load batch")
	}
	for _, r := range batch.Rejected {
		log.WithError(r.Err).WithField("index", r.Index).Warn("item rejected")
	}

	if *decodeOnly {
		printJSON(batch.Events)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if err := run(ctx, cfg, batch, log); err != nil {
		log.WithError(err).Fatal("replay failed")
	}
}

func run(ctx context.Context, cfg *config.Config, batch *ingest.Batch, log logrus.FieldLogger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := app.NewService(ctx, cfg, stores, nil, log, observability.DefaultMetrics())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.PipelineTimeout)
	defer cancel()

	result, err := svc.Pipeline.ProcessBatch(ctx, batch)
	if result != nil {
		printJSON(result)
	}
	return err
}

func loadFile(path string) (*ingest.Batch, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ingest.DecodeBatch(body)
}

func fetchSignature(ctx context.Context, rpc solana.TransactionReader, signature string) (*ingest.Batch, error) {
	raw, err := rpc.GetTransactionRaw(ctx, signature)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("transaction not found")
	}
	ev, err := ingest.DecodeTransaction(raw)
	if err != nil {
		return nil, err
	}
	return &ingest.Batch{Total: 1, Events: []*domain.TransactionEvent{ev}}, nil
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
