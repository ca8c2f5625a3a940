package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/config"
	"github.com/stake-plus/govledger/src/ledger/data"
	"github.com/stake-plus/govledger/src/ledger/metrics"
	"github.com/stake-plus/govledger/src/ledger/service"
	"github.com/stake-plus/govledger/src/ledger/snapshot"
	"github.com/stake-plus/govledger/src/ledger/state"
	"github.com/stake-plus/govledger/src/ledger/types"
)

var (
	modeFlag    = flag.String("mode", "inspect", "inspect|roundtrip|seed")
	backendFlag = flag.String("backend", "", "Override SNAPSHOT_BACKEND (file|mysql|redis)")
	pathFlag    = flag.String("snapshot", "", "Override SNAPSHOT_PATH for the file backend")
	timeoutFlag = flag.Duration("timeout", 30*time.Second, "Backend timeout")
	seedCount   = flag.Int("proposals", 3, "Proposals to create in seed mode")
	seedVoters  = flag.Int("voters", 10, "Voters per proposal in seed mode")
	verboseFlag = flag.Bool("v", false, "Print every proposal")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *backendFlag != "" {
		cfg.SnapshotBackend = *backendFlag
	}
	if *pathFlag != "" {
		cfg.SnapshotPath = *pathFlag
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(*modeFlag)) {
	case "inspect":
		err = inspect(ctx, store)
	case "roundtrip":
		err = roundtrip(ctx, store)
	case "seed":
		err = seed(ctx, store)
	default:
		err = errors.New("expected inspect, roundtrip, or seed")
	}
	if err != nil {
		log.Fatalf("%s ❌ %v", *modeFlag, err)
	}
}

func openStore(cfg config.Config) (data.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case config.BackendMySQL:
		db, err := data.ConnectMySQL(cfg.MySQLDSN, zap.NewNop())
		if err != nil {
			return nil, err
		}
		return data.NewMySQLStore(db, "ledger", cfg.SnapshotKeep)
	case config.BackendRedis:
		rdb, err := data.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return data.NewRedisStore(rdb, cfg.SnapshotKey), nil
	case config.BackendFile, "":
		return data.NewFileStore(cfg.SnapshotPath), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.SnapshotBackend)
	}
}

func inspect(ctx context.Context, store data.SnapshotStore) error {
	blob, err := store.Load(ctx)
	if err != nil {
		return err
	}
	hdr, err := snapshot.Inspect(blob)
	if err != nil {
		return err
	}
	snap, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	st := state.NewStore()
	if err := st.Restore(snap); err != nil {
		return err
	}

	stats := st.ComputeStats()
	fmt.Printf("inspect ✅ version=%d saved=%s checksum=%s bytes=%d\n",
		hdr.Version, time.Unix(hdr.SavedAt, 0).UTC().Format(time.RFC3339), hdr.Checksum, len(blob))
	fmt.Printf("proposals=%d profiles=%d votes=%d (yes=%d no=%d)\n",
		stats.TotalProposals, len(snap.UserProfiles), stats.TotalVotes, stats.TotalYesVotes, stats.TotalNoVotes)
	if *verboseFlag {
		for _, p := range st.ListProposals() {
			fmt.Printf("  %s  yes=%-6d no=%-6d ends=%s  %s\n", p.ID, p.YesVotes, p.NoVotes,
				p.EndsAt().UTC().Format(time.RFC3339), truncate(p.Title, 60))
		}
	}
	return nil
}

// roundtrip decodes the stored snapshot and re-encodes it with the original
// save time; the checksum must not change.
func roundtrip(ctx context.Context, store data.SnapshotStore) error {
	blob, err := store.Load(ctx)
	if err != nil {
		return err
	}
	hdr, err := snapshot.Inspect(blob)
	if err != nil {
		return err
	}
	snap, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	again, err := snapshot.Encode(snap, time.Unix(hdr.SavedAt, 0))
	if err != nil {
		return err
	}
	hdr2, err := snapshot.Inspect(again)
	if err != nil {
		return err
	}
	if hdr.Checksum != hdr2.Checksum {
		return fmt.Errorf("checksum drift %s -> %s", hdr.Checksum, hdr2.Checksum)
	}
	fmt.Printf("roundtrip ✅ checksum=%s proposals=%d\n", hdr.Checksum, len(snap.Proposals))
	return nil
}

// seed fills a fresh ledger with sample data and saves it through the
// regular checkpoint path.
func seed(ctx context.Context, store data.SnapshotStore) error {
	ledger := service.New(state.NewStore(), store, zap.NewNop(), metrics.NewCollector("smoketest"))
	for i := 0; i < *seedCount; i++ {
		id, err := ledger.CreateProposal("smoketest-author", types.ProposalFields{
			Title:        fmt.Sprintf("Smoke test proposal %d", i+1),
			Description:  "Generated by ledger-smoketest",
			DurationDays: 7,
		})
		if err != nil {
			return err
		}
		for v := 0; v < *seedVoters; v++ {
			choice := types.ChoiceYes
			if v%3 == 0 {
				choice = types.ChoiceNo
			}
			if err := ledger.Vote(id, fmt.Sprintf("smoketest-voter-%d", v), choice); err != nil {
				return err
			}
		}
	}
	if err := ledger.Checkpoint(ctx); err != nil {
		return err
	}
	fmt.Printf("seed ✅ proposals=%d votes=%d\n", *seedCount, (*seedCount)*(*seedVoters))
	return inspect(ctx, store)
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
