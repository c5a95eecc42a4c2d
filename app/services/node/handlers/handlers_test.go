package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/app/services/node/handlers"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type node struct {
	chain   *chain.Chain
	mempool *mempool.Mempool
	evts    *events.Events
	public  http.Handler
	private http.Handler
	debug   http.Handler
}

func newNode(t *testing.T, difficulty uint) node {
	t.Helper()

	// Mining events flow to websocket subscribers the way the node main
	// wires them.
	evts := events.New()
	ev := func(v string, args ...any) {
		evts.Send(fmt.Sprintf(v, args...))
	}

	c, err := chain.New(chain.Config{Difficulty: difficulty, EvHandler: ev})
	if err != nil {
		t.Fatalf("Should be able to construct a chain: %s", err)
	}

	mp := mempool.New()
	w := worker.Run(worker.Config{Chain: c, Mempool: mp, EvHandler: ev})
	t.Cleanup(w.Shutdown)
	t.Cleanup(evts.Shutdown)

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		Chain:    c,
		Mempool:  mp,
		Worker:   w,
		Evts:     evts,
	}

	n := node{
		chain:   c,
		mempool: mp,
		evts:    evts,
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		debug:   handlers.DebugMux("test", cfg.Log, c),
	}

	return n
}

func call(h http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	return w
}

// =============================================================================

func Test_SubmitAndValidate(t *testing.T) {
	n := newNode(t, 2)

	t.Log("Given the need to drive the chain through the web api.")
	{
		t.Logf("\tTest 0:\tWhen submitting the two block scenario.")
		{
			bodies := []string{
				`{"index":1,"timestamp":"t1","payload":{"amount":4}}`,
				`{"index":2,"timestamp":"t2","payload":{"amount":1.2}}`,
			}

			for _, body := range bodies {
				want := n.chain.Length() + 1

				w := call(n.public, http.MethodPost, "/v1/blocks/submit", body)
				if w.Code != http.StatusAccepted {
					t.Fatalf("\t%s\tTest 0:\tShould be able to submit a block, got %d: %s", failed, w.Code, w.Body)
				}

				deadline := time.Now().Add(5 * time.Second)
				for n.chain.Length() < want && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to submit blocks.", success)

			if n.chain.Length() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould mine both blocks, got %d blocks.", failed, n.chain.Length())
			}
			t.Logf("\t%s\tTest 0:\tShould mine both blocks.", success)

			w := call(n.public, http.MethodGet, "/v1/blocks/list", "")
			var list struct {
				Difficulty uint                 `json:"difficulty"`
				Blocks     []database.BlockView `json:"blocks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to decode the block list: %v", failed, err)
			}

			exp := []string{
				"0031c6276070c4c285b704505a0ef881d0b8b036ecb7c535ce3857ef59b4b774",
				"00dd854aa8d12b0fc16f922fa90e8c41772534f5236d077484ebf16c2827aa31",
			}
			for i, digest := range exp {
				if list.Blocks[i+1].Digest != digest {
					t.Fatalf("\t%s\tTest 0:\tShould list block %d with digest %s, got %s.", failed, i+1, digest, list.Blocks[i+1].Digest)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould list the mined blocks.", success)

			if v := validation(t, n); !v.Valid || v.Status != "valid" {
				t.Fatalf("\t%s\tTest 0:\tShould report a valid chain, got %+v.", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould report a valid chain.", success)

			w = call(n.private, http.MethodPost, "/v1/node/tamper/1", `{"payload":{"amount":100}}`)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould be able to tamper with block 1, got %d: %s", failed, w.Code, w.Body)
			}

			if v := validation(t, n); v.Valid || v.Status != "digest_mismatch" || v.Position != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report a digest mismatch at 1, got %+v.", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould report a digest mismatch at 1.", success)

			call(n.private, http.MethodPost, "/v1/node/tamper/1", `{"recompute":true}`)

			if v := validation(t, n); v.Valid || v.Status != "link_mismatch" || v.Position != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould report a link mismatch at 2, got %+v.", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould report a link mismatch at 2.", success)

			if w := call(n.debug, http.MethodGet, "/debug/readiness", ""); w.Code != http.StatusInternalServerError {
				t.Fatalf("\t%s\tTest 0:\tShould fail readiness on a tampered chain, got %d.", failed, w.Code)
			}
			t.Logf("\t%s\tTest 0:\tShould fail readiness on a tampered chain.", success)
		}
	}
}

func Test_BadRequests(t *testing.T) {
	n := newNode(t, 0)

	type table struct {
		name    string
		handler http.Handler
		method  string
		path    string
		body    string
		status  int
	}

	tt := []table{
		{"missing-fields", n.public, http.MethodPost, "/v1/blocks/submit", `{"payload":"x"}`, http.StatusBadRequest},
		{"bad-payload", n.public, http.MethodPost, "/v1/blocks/submit", `{"index":1,"timestamp":"t1","payload":[1]}`, http.StatusBadRequest},
		{"unknown-field", n.public, http.MethodPost, "/v1/blocks/submit", `{"index":1,"timestamp":"t1","payload":"x","nonce":5}`, http.StatusBadRequest},
		{"not-found", n.public, http.MethodGet, "/v1/blocks/list/9", "", http.StatusNotFound},
		{"bad-position", n.public, http.MethodGet, "/v1/blocks/list/abc", "", http.StatusBadRequest},
		{"tamper-genesis", n.private, http.MethodPost, "/v1/node/tamper/0", `{"recompute":true}`, http.StatusBadRequest},
		{"tamper-digest", n.private, http.MethodPost, "/v1/node/tamper/0", `{"digest":"abc"}`, http.StatusBadRequest},
		{"tamper-missing", n.private, http.MethodPost, "/v1/node/tamper/9", `{"recompute":true}`, http.StatusNotFound},
	}

	t.Log("Given the need to reject bad requests.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				w := call(tst.handler, tst.method, tst.path, tst.body)
				if w.Code != tst.status {
					t.Fatalf("\t%s\tTest %d:\tShould get %d for %s, got %d: %s", failed, testID, tst.status, tst.name, w.Code, w.Body)
				}
				t.Logf("\t%s\tTest %d:\tShould get %d for %s.", success, testID, tst.status, tst.name)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Status(t *testing.T) {
	n := newNode(t, 3)

	w := call(n.public, http.MethodGet, "/v1/chain/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Should be able to get the status, got %d", w.Code)
	}

	var st struct {
		Blocks     int    `json:"blocks"`
		Difficulty uint   `json:"difficulty"`
		TailDigest string `json:"tail_digest"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Should be able to decode the status: %s", err)
	}

	if st.Blocks != 1 || st.Difficulty != 3 || st.TailDigest != chain.Genesis().Digest {
		t.Fatalf("Should describe a new chain, got %+v", st)
	}

	if w := call(n.debug, http.MethodGet, "/debug/readiness", ""); w.Code != http.StatusOK {
		t.Fatalf("Should be ready with a valid chain, got %d", w.Code)
	}
}

func Test_Events(t *testing.T) {
	n := newNode(t, 1)

	t.Log("Given the need to watch mining events over a websocket.")
	{
		t.Logf("\tTest 0:\tWhen a block is submitted while subscribed.")
		{
			srv := httptest.NewServer(n.public)
			defer srv.Close()

			conn := subscribe(t, n, srv)
			defer conn.Close()
			t.Logf("\t%s\tTest 0:\tShould be able to subscribe to events.", success)

			resp, err := http.Post(srv.URL+"/v1/blocks/submit", "application/json", strings.NewReader(`{"index":1,"timestamp":"t1","payload":{"amount":4}}`))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit a block: %v", failed, err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit a block, got %d.", failed, resp.StatusCode)
			}

			msg, ok := readUntil(conn, "MINING: SOLVED", 5*time.Second)
			if !ok {
				t.Fatalf("\t%s\tTest 0:\tShould receive the solved event.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould receive the solved event: %s", success, msg)

			if !strings.Contains(msg, "blk[1]") {
				t.Fatalf("\t%s\tTest 0:\tShould name block 1 in the solved event, got %s.", failed, msg)
			}
			t.Logf("\t%s\tTest 0:\tShould name block 1 in the solved event.", success)
		}
	}
}

func Test_CancelMining(t *testing.T) {

	// No digest is expected to carry this many leading zeros.
	n := newNode(t, 16)

	t.Log("Given the need to stop a mining operation that takes too long.")
	{
		t.Logf("\tTest 0:\tWhen mining is cancelled through the private api.")
		{
			srv := httptest.NewServer(n.public)
			defer srv.Close()

			conn := subscribe(t, n, srv)
			defer conn.Close()

			w := call(n.public, http.MethodPost, "/v1/blocks/submit", `{"index":1,"timestamp":"t1","payload":"never solved"}`)
			if w.Code != http.StatusAccepted {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit a block, got %d: %s", failed, w.Code, w.Body)
			}

			if _, ok := readUntil(conn, "Mine: MINING: started", 5*time.Second); !ok {
				t.Fatalf("\t%s\tTest 0:\tShould see mining start.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould see mining start.", success)

			if w := call(n.private, http.MethodPost, "/v1/node/mining/cancel", ""); w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould be able to cancel mining, got %d: %s", failed, w.Code, w.Body)
			}

			if _, ok := readUntil(conn, "MINING: CANCELLED", 5*time.Second); !ok {
				t.Fatalf("\t%s\tTest 0:\tShould see mining cancelled.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould see mining cancelled.", success)

			deadline := time.Now().Add(5 * time.Second)
			for n.mempool.Count() > 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}

			if n.mempool.Count() != 0 || n.chain.Length() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould drop the candidate and leave the chain alone, got %d pending and %d blocks.", failed, n.mempool.Count(), n.chain.Length())
			}
			t.Logf("\t%s\tTest 0:\tShould drop the candidate and leave the chain alone.", success)
		}
	}
}

// =============================================================================

// subscribe opens the events websocket and waits for the node to register
// the subscriber so no event is missed.
func subscribe(t *testing.T, n node, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Should be able to dial the events websocket: %s", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for n.evts.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if n.evts.Count() == 0 {
		conn.Close()
		t.Fatalf("Should register the subscriber.")
	}

	return conn
}

// readUntil reads messages until one contains the text or the wait runs out.
func readUntil(conn *websocket.Conn, text string, wait time.Duration) (string, bool) {
	conn.SetReadDeadline(time.Now().Add(wait))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", false
		}

		if strings.Contains(string(msg), text) {
			return string(msg), true
		}
	}
}

// =============================================================================

type result struct {
	Valid    bool   `json:"valid"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

func validation(t *testing.T, n node) result {
	t.Helper()

	w := call(n.public, http.MethodGet, "/v1/chain/validate", "")

	var res result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("Should be able to decode the validation result: %s", err)
	}

	return res
}
