package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/nameservice"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check the signature and the integrity of a signed snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal(err)
	}

	var ss chain.SignedSnapshot
	if err := json.Unmarshal(data, &ss); err != nil {
		log.Fatal(err)
	}

	signer, err := ss.Signer()
	if err != nil {
		log.Fatalf("snapshot signature: %s", err)
	}

	// Name the signer when its key is one of ours.
	name := signer
	if ns, err := nameservice.New(keyPath); err == nil {
		name = ns.Lookup(signer)
	}
	fmt.Printf("Signed by: %s (%s)\n", name, signer)

	res, err := ss.Validate()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Blocks: %d  Difficulty: %d\n", len(ss.Blocks), ss.Difficulty)
	fmt.Printf("Is blockchain valid? %t\n", res.Valid())
	if err := res.Err(); err != nil {
		fmt.Printf("  %s\n", err)
		os.Exit(1)
	}
}
