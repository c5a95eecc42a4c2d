package public

import (
	"encoding/json"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
)

type newBlock struct {
	Index     *uint64         `json:"index" validate:"required"`
	Timestamp string          `json:"timestamp" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

type submitted struct {
	ID     string `json:"id"`
	Index  uint64 `json:"index"`
	Status string `json:"status"`
}

type validation struct {
	Valid    bool   `json:"valid"`
	Status   string `json:"status"`
	Position int    `json:"position"`
	Reason   string `json:"reason,omitempty"`
}

func toValidation(res chain.Result) validation {
	v := validation{
		Valid:    res.Valid(),
		Status:   res.Status.String(),
		Position: res.Position,
	}

	if err := res.Err(); err != nil {
		v.Reason = err.Error()
	}

	return v
}

type status struct {
	Blocks     int        `json:"blocks"`
	Difficulty uint       `json:"difficulty"`
	TailDigest string     `json:"tail_digest"`
	Pending    int        `json:"pending"`
	Validation validation `json:"validation"`
}

type candidate struct {
	ID        string          `json:"id"`
	Index     uint64          `json:"index"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Submitted time.Time       `json:"submitted"`
}

func toCandidate(cand mempool.Candidate) candidate {
	return candidate{
		ID:        cand.ID.String(),
		Index:     cand.Block.Index,
		Timestamp: cand.Block.Timestamp,
		Payload:   cand.Block.View().Payload,
		Submitted: cand.Submitted,
	}
}

type blocks struct {
	Difficulty uint                 `json:"difficulty"`
	Blocks     []database.BlockView `json:"blocks"`
}
