package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// genesisDigest is the digest of the block the chain package uses as genesis.
const genesisDigest = "8a24ea7992280903189d6c3d05a013a74220cebc1af449e05b58bee1cffbe4eb"

// =============================================================================

func Test_ComputeDigest(t *testing.T) {
	type table struct {
		name  string
		block database.Block
		exp   string
	}

	tt := []table{
		{
			name: "genesis",
			block: database.Block{
				Index:      0,
				Timestamp:  "01/01/2018",
				Payload:    database.Text("Genesis Block created at start of ICO"),
				PrevDigest: signature.GenesisPrevDigest,
			},
			exp: genesisDigest,
		},
		{
			name:  "provisional",
			block: database.NewBlock(1, "t1", database.MustFields(map[string]any{"amount": 4})),
			exp:   "cb0c648924c159fa63599aadf9b36d753cec15f551774b0de3b1d26b5a8d9cfe",
		},
		{
			name: "mined",
			block: database.Block{
				Index:      1,
				Timestamp:  "t1",
				Payload:    database.MustFields(map[string]any{"amount": 4}),
				PrevDigest: genesisDigest,
				Nonce:      1294,
			},
			exp: "0031c6276070c4c285b704505a0ef881d0b8b036ecb7c535ce3857ef59b4b774",
		},
	}

	t.Log("Given the need to compute block digests.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen computing the %s digest.", testID, tst.name)
				{
					got := tst.block.ComputeDigest()
					if got != tst.exp {
						t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.exp)
						t.Fatalf("\t%s\tTest %d:\tShould get back the right digest.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right digest.", success, testID)

					if again := tst.block.ComputeDigest(); again != got {
						t.Fatalf("\t%s\tTest %d:\tShould get the same digest on recompute.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the same digest on recompute.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_DigestChangesWithFields(t *testing.T) {
	base := database.Block{
		Index:      1,
		Timestamp:  "t1",
		Payload:    database.MustFields(map[string]any{"amount": 4}),
		PrevDigest: genesisDigest,
	}
	digest := base.ComputeDigest()

	changes := map[string]func(b *database.Block){
		"index":     func(b *database.Block) { b.Index = 2 },
		"timestamp": func(b *database.Block) { b.Timestamp = "t2" },
		"payload":   func(b *database.Block) { b.Payload = database.MustFields(map[string]any{"amount": 100}) },
		"previous":  func(b *database.Block) { b.PrevDigest = strings.Repeat("0", signature.DigestLength) },
		"nonce":     func(b *database.Block) { b.Nonce = 1 },
	}

	for name, change := range changes {
		b := base
		change(&b)
		if b.ComputeDigest() == digest {
			t.Fatalf("Should get a different digest when the %s changes.", name)
		}
	}
}

func Test_Mine(t *testing.T) {
	type table struct {
		difficulty uint
		nonce      uint64
		digest     string
	}

	tt := []table{
		{0, 0, "f65b9439d4dea3a87321cb6d4ef1b655d2a763d1a4a142f9b5f4c2257975cb17"},
		{1, 5, "0f1f70a2c7d7740bc8ba3291fe8ed9005e73944d4822b6f5e413dae2e4d2f860"},
		{2, 1294, "0031c6276070c4c285b704505a0ef881d0b8b036ecb7c535ce3857ef59b4b774"},
		{3, 3856, "0004f221d1838149647a83509e53c317d7d5e29e964c7c130c537e14a960e806"},
	}

	t.Log("Given the need to mine blocks at different difficulties.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen mining with difficulty %d.", testID, tst.difficulty)
			{
				b := database.NewBlock(1, "t1", database.MustFields(map[string]any{"amount": 4}))
				b.PrevDigest = genesisDigest

				var solved bool
				ev := func(v string, args ...any) {
					if strings.Contains(v, "SOLVED") {
						solved = true
					}
				}

				if err := b.Mine(context.Background(), tst.difficulty, ev); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to mine the block.", success, testID)

				if !strings.HasPrefix(b.Digest, strings.Repeat("0", int(tst.difficulty))) {
					t.Fatalf("\t%s\tTest %d:\tShould have %d leading zeros, got %s.", failed, testID, tst.difficulty, b.Digest)
				}
				t.Logf("\t%s\tTest %d:\tShould have %d leading zeros.", success, testID, tst.difficulty)

				if b.Nonce != tst.nonce || b.Digest != tst.digest {
					t.Logf("\t%s\tTest %d:\tgot: %d %s", failed, testID, b.Nonce, b.Digest)
					t.Logf("\t%s\tTest %d:\texp: %d %s", failed, testID, tst.nonce, tst.digest)
					t.Fatalf("\t%s\tTest %d:\tShould find the first solving nonce.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould find the first solving nonce.", success, testID)

				if b.Digest != b.ComputeDigest() {
					t.Fatalf("\t%s\tTest %d:\tShould store the digest of the final fields.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould store the digest of the final fields.", success, testID)

				if !solved {
					t.Fatalf("\t%s\tTest %d:\tShould signal the block was solved.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould signal the block was solved.", success, testID)
			}
		}
	}
}

func Test_MineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := database.NewBlock(1, "t1", database.Text("never solved"))
	err := b.Mine(ctx, database.MaxDifficulty, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Should get back context.Canceled, got %v", err)
	}

	if b.Digest != b.ComputeDigest() {
		t.Fatalf("Should leave the block with a digest matching its fields.")
	}
}

func Test_MineInvalidDifficulty(t *testing.T) {
	b := database.NewBlock(1, "t1", database.Text("x"))
	if err := b.Mine(context.Background(), database.MaxDifficulty+1, nil); !errors.Is(err, database.ErrInvalidDifficulty) {
		t.Fatalf("Should reject a difficulty larger than the digest, got %v", err)
	}
}

func Test_IsDigestSolved(t *testing.T) {
	digest := "00dd854aa8d12b0fc16f922fa90e8c41772534f5236d077484ebf16c2827aa31"

	for d, exp := range []bool{true, true, true, false, false} {
		if got := database.IsDigestSolved(uint(d), digest); got != exp {
			t.Fatalf("Should get %v for difficulty %d, got %v", exp, d, got)
		}
	}

	if database.IsDigestSolved(3, "00") {
		t.Fatalf("Should not accept a digest shorter than the difficulty.")
	}
}

func Test_View(t *testing.T) {
	b := database.NewBlock(2, "t2", database.MustFields(map[string]any{"amount": 1.2}))
	b.PrevDigest = genesisDigest

	v := b.View()
	if string(v.Payload) != `{"amount":1.2}` {
		t.Fatalf("Should expose the canonical payload, got %s", v.Payload)
	}

	back, err := database.FromView(v)
	if err != nil {
		t.Fatalf("Should be able to convert a view back to a block: %s", err)
	}

	if back.ComputeDigest() != b.ComputeDigest() || back.Digest != b.Digest {
		t.Fatalf("Should get back a block with the same digest.")
	}
}
