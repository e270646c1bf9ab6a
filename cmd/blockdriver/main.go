// Command blockdriver seals, for each --block JSON file (one object holding
// a blockIndex and an ordered transactions array; several files are
// processed concurrently), a block against a persisted exchange state
// snapshot, then saves the result. It is a thin CLI shell around state/executor/block/statestore;
// see provers/cmd/main.go for the env-var-then-flag configuration pattern
// this mirrors.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/sync/errgroup"

	"github.com/loopnode/dex-rollup-state/block"
	"github.com/loopnode/dex-rollup-state/internal/config"
	"github.com/loopnode/dex-rollup-state/internal/rlog"
	"github.com/loopnode/dex-rollup-state/state"
	"github.com/loopnode/dex-rollup-state/statestore"
)

func main() {
	log := rlog.New(true)

	cfgPath := os.Getenv("BLOCKDRIVER_CONFIG")
	cfg, err := config.Load(cfgPath, os.Args[1:]...)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	showStats := false
	var blockFiles []string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--stats" {
			showStats = true
		}
		if os.Args[i] == "--block" && i+1 < len(os.Args) {
			blockFiles = append(blockFiles, os.Args[i+1])
		}
	}

	if showStats {
		logMemStats(log)
	}

	if len(blockFiles) == 0 {
		log.Fatal().Msg("at least one --block <file.json> is required")
	}

	g, ctx := errgroup.WithContext(context.Background())
	results := make([]*blockResult, len(blockFiles))
	for i, file := range blockFiles {
		i, file := i, file
		g.Go(func() error {
			res, err := runBlock(ctx, log, cfg, file)
			if err != nil {
				return fmt.Errorf("block file %s: %w", file, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("block processing failed")
	}

	printSummary(results)
}

type blockResult struct {
	File        string
	BlockIndex  uint64
	NumTx       int
	RootBefore  string
	RootAfter   string
	ElapsedSecs float64
}

func runBlock(ctx context.Context, log zerolog.Logger, cfg *config.Config, txFile string) (*blockResult, error) {
	start := time.Now()

	data, err := os.ReadFile(txFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", txFile, err)
	}
	blockIdx, txs, err := decodeBlockFile(data)
	if err != nil {
		return nil, err
	}

	st, err := statestore.Load(cfg.StatesDir, cfg.ExchangeID, blockIdx-1)
	if err != nil {
		log.Warn().Err(err).Uint64("blockIdx", blockIdx).Msg("no prior snapshot found, starting from genesis")
		st = state.New(cfg.ExchangeID)
	}

	builder := block.NewBuilder(st, block.Header{
		ExchangeID:           cfg.ExchangeID,
		Timestamp:            uint32(time.Now().Unix()),
		ProtocolTakerFeeBips: cfg.ProtocolTakerFeeBips,
		ProtocolMakerFeeBips: cfg.ProtocolMakerFeeBips,
		OperatorAccountID:    uint64(cfg.OperatorAccountID),
	})

	for _, tx := range txs {
		if err := builder.Add(tx); err != nil {
			return nil, fmt.Errorf("tx %d: %w", builder.Size(), err)
		}
	}

	sealed, err := builder.Seal(builder.Size())
	if err != nil {
		return nil, fmt.Errorf("seal block: %w", err)
	}

	if err := statestore.Save(cfg.StatesDir, st, blockIdx); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &blockResult{
		File:        txFile,
		BlockIndex:  blockIdx,
		NumTx:       len(sealed.Transactions),
		RootBefore:  sealed.MerkleRootBefore.String(),
		RootAfter:   sealed.MerkleRootAfter.String(),
		ElapsedSecs: time.Since(start).Seconds(),
	}, nil
}

func printSummary(results []*blockResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Block", "Txs", "Root Before", "Root After", "Seconds"})
	for _, r := range results {
		if r == nil {
			continue
		}
		table.Append([]string{
			r.File,
			fmt.Sprintf("%d", r.BlockIndex),
			fmt.Sprintf("%d", r.NumTx),
			truncate(r.RootBefore),
			truncate(r.RootAfter),
			fmt.Sprintf("%.3f", r.ElapsedSecs),
		})
	}
	table.Render()
}

func truncate(s string) string {
	if len(s) > 16 {
		return s[:16] + "…"
	}
	return s
}

func logMemStats(log zerolog.Logger) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("read memory stats")
		return
	}
	log.Info().
		Uint64("totalMB", vm.Total/1024/1024).
		Uint64("usedMB", vm.Used/1024/1024).
		Float64("usedPercent", vm.UsedPercent).
		Msg("host memory")
}
