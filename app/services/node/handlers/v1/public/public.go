// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	Chain   *chain.Chain
	Mempool *mempool.Mempool
	Worker  *worker.Worker
	WS      websocket.Upgrader
	Evts    *events.Events
}

// Events handles a web socket to provide mining events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id, ch := h.Evts.Subscribe()
	defer h.Evts.Unsubscribe(id)

	h.Log.Infow("events", "traceid", web.GetTraceID(ctx), "subscriber", id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns a summary of the chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := status{
		Blocks:     h.Chain.Length(),
		Difficulty: h.Chain.Difficulty(),
		TailDigest: h.Chain.Tail().Digest,
		Pending:    h.Mempool.Count(),
		Validation: toValidation(h.Chain.Validate()),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Validate walks the chain and reports the first block that fails.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toValidation(h.Chain.Validate()), http.StatusOK)
}

// Blocks returns every block in the chain or the block at the specified
// position.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pos := web.Param(r, "position")
	if pos == "" {
		resp := blocks{
			Difficulty: h.Chain.Difficulty(),
			Blocks:     h.Chain.Snapshot(),
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}

	position, err := strconv.Atoi(pos)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid position %q", pos), http.StatusBadRequest)
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

// SubmitBlock queues a new block to be mined into the chain.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nb newBlock
	if err := web.Decode(r, &nb); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(nb); err != nil {
		return err
	}

	payload, err := database.ParsePayload(nb.Payload)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	cand := h.Worker.Submit(database.NewBlock(*nb.Index, nb.Timestamp, payload))

	h.Log.Infow("submit block", "traceid", web.GetTraceID(ctx), "candidate", cand.ID, "index", *nb.Index)

	resp := submitted{
		ID:     cand.ID.String(),
		Index:  *nb.Index,
		Status: "block queued for mining",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// MempoolList returns the set of blocks waiting to be mined.
func (h Handlers) MempoolList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cands := h.Mempool.Copy()

	resp := make([]candidate, len(cands))
	for i, cand := range cands {
		resp[i] = toCandidate(cand)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
