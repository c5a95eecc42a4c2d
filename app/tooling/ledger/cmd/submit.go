package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	index     uint64
	timestamp string
	payload   string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a block to a node for mining",
	Run:   submitRun,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().Uint64VarP(&index, "index", "i", 1, "Index recorded in the block.")
	submitCmd.Flags().StringVarP(&timestamp, "timestamp", "t", "", "Timestamp recorded in the block.")
	submitCmd.Flags().StringVarP(&payload, "payload", "d", "", `Payload as JSON, a string or an object like '{"amount":4}'.`)
	submitCmd.MarkFlagRequired("timestamp")
	submitCmd.MarkFlagRequired("payload")
}

func submitRun(cmd *cobra.Command, args []string) {
	if !json.Valid([]byte(payload)) {
		log.Fatal("payload is not valid JSON")
	}

	nb := struct {
		Index     uint64          `json:"index"`
		Timestamp string          `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}{
		Index:     index,
		Timestamp: timestamp,
		Payload:   json.RawMessage(payload),
	}

	data, err := json.Marshal(nb)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/blocks/submit", nodeURL), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Status)
	fmt.Println(string(body))
}
