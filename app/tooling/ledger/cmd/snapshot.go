package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var sign bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export the chain from a node as a signed snapshot",
	Run:   snapshotRun,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolVarP(&sign, "sign", "s", true, "Sign the snapshot with the private key.")
}

// blocksDoc matches the document returned by the node's blocks list route.
type blocksDoc struct {
	Difficulty uint                 `json:"difficulty"`
	Blocks     []database.BlockView `json:"blocks"`
}

func snapshotRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/blocks/list", nodeURL))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("node responded with status %d", resp.StatusCode)
	}

	var doc blocksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		log.Fatal(err)
	}

	var out any = doc
	if sign {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		ss, err := chain.SignSnapshot(doc.Difficulty, doc.Blocks, privateKey)
		if err != nil {
			log.Fatal(err)
		}
		out = ss
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}
