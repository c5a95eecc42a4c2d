// Package private maintains the group of handlers for node to operator
// access. These routes bypass the rules of the chain and must never be
// exposed on a public host.
package private

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Chain  *chain.Chain
	Worker *worker.Worker
}

type tamper struct {
	Payload   json.RawMessage `json:"payload"`
	Digest    string          `json:"digest" validate:"omitempty,len=64,hexadecimal"`
	Recompute bool            `json:"recompute"`
}

// Tamper changes the block at the specified position in place. This is
// how tamper detection is demonstrated against a running node.
func (h Handlers) Tamper(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	position, err := strconv.Atoi(web.Param(r, "position"))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid position %q", web.Param(r, "position")), http.StatusBadRequest)
	}

	var tmp tamper
	if err := web.Decode(r, &tmp); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(tmp); err != nil {
		return err
	}

	var payload database.Payload
	if len(tmp.Payload) > 0 {
		if payload, err = database.ParsePayload(tmp.Payload); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	h.Log.Warnw("tamper", "traceid", web.GetTraceID(ctx), "position", position, "payload", string(tmp.Payload), "digest", tmp.Digest, "recompute", tmp.Recompute)

	f := func(b *database.Block) {
		if payload != nil {
			b.Payload = payload
		}
		if tmp.Digest != "" {
			b.Digest = tmp.Digest
		}
		if tmp.Recompute {
			b.Digest = b.ComputeDigest()
		}
	}

	if err := h.Chain.Tamper(position, f); err != nil {
		switch {
		case errors.Is(err, chain.ErrBlockNotFound):
			return errs.NewTrusted(err, http.StatusNotFound)
		case errors.Is(err, chain.ErrGenesisImmutable):
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	block, err := h.Chain.Block(position)
	if err != nil {
		if errors.Is(err, chain.ErrBlockNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, block.View(), http.StatusOK)
}

// CancelMining stops the mining operation in progress, if any.
func (h Handlers) CancelMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.SignalCancelMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining cancel signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
