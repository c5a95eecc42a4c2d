package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var demoDifficulty uint

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Mine a small chain, tamper with it and report what validation finds",
	Run:   demoRun,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().UintVarP(&demoDifficulty, "difficulty", "d", 2, "Number of leading zeros a mined digest needs.")
}

func demoRun(cmd *cobra.Command, args []string) {
	if err := runDemo(cmd.Context(), cmd.OutOrStdout(), demoDifficulty); err != nil {
		log.Fatal(err)
	}
}

type demoBlock struct {
	timestamp string
	amount    float64
}

var demoBlocks = []demoBlock{
	{"t1", 4},
	{"t2", 1.2},
	{"05/03/2018", 16.1},
	{"06/22/2018", 3.7},
}

func runDemo(ctx context.Context, w io.Writer, difficulty uint) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ev := func(v string, args ...any) {
		fmt.Fprintf(w, v+"\n", args...)
	}

	chn, err := chain.New(chain.Config{
		Difficulty: difficulty,
		EvHandler:  ev,
	})
	if err != nil {
		return err
	}

	for i, db := range demoBlocks {
		payload, err := database.NewFields(map[string]any{"amount": db.amount})
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Mining block %d...\n", i+1)
		if _, err := chn.Append(ctx, uint64(i+1), db.timestamp, payload); err != nil {
			return fmt.Errorf("appending block %d: %w", i+1, err)
		}
	}

	data, err := json.MarshalIndent(chn.Snapshot(), "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))

	report(w, chn)

	// Change the content of block 1 without touching its digest.
	err = chn.Tamper(1, func(b *database.Block) {
		b.Payload = database.MustFields(map[string]any{"amount": 100})
	})
	if err != nil {
		return err
	}
	report(w, chn)

	// Bring the digest of block 1 back in line with its content. The link
	// held by block 2 still points at the old digest.
	err = chn.Tamper(1, func(b *database.Block) {
		b.Digest = b.ComputeDigest()
	})
	if err != nil {
		return err
	}
	report(w, chn)

	return nil
}

func report(w io.Writer, chn *chain.Chain) {
	res := chn.Validate()
	fmt.Fprintf(w, "Is blockchain valid? %t\n", res.Valid())
	if err := res.Err(); err != nil {
		fmt.Fprintf(w, "  %s\n", err)
	}
}
