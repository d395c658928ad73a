package ledger

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrizes(t *testing.T) {
	prizes, err := ParsePrizes("0, 500,1000 ,0")
	if err != nil {
		t.Fatalf("ParsePrizes error: %v", err)
	}
	if len(prizes) != 4 {
		t.Fatalf("prizes length = %d, want 4", len(prizes))
	}
	if !prizes[1].Equal(decimal.New(500, 0)) {
		t.Fatalf("prizes[1] = %s, want 500", prizes[1])
	}
}

func TestParsePrizes_EmptyFallsBackToDefault(t *testing.T) {
	prizes, err := ParsePrizes("   ")
	if err != nil {
		t.Fatalf("ParsePrizes error: %v", err)
	}
	if len(prizes) != 8 {
		t.Fatalf("default prizes length = %d, want 8", len(prizes))
	}
}

func TestParsePrizes_Invalid(t *testing.T) {
	if _, err := ParsePrizes("0,abc"); err == nil {
		t.Fatalf("expected error for non-numeric prize")
	}
	if _, err := ParsePrizes("0,-5"); err == nil {
		t.Fatalf("expected error for negative prize")
	}
}

func TestWeightedPool(t *testing.T) {
	prizes, err := ParsePrizes(DefaultPrizes)
	if err != nil {
		t.Fatalf("ParsePrizes error: %v", err)
	}

	pool := WeightedPool(prizes)

	// 0,500,1000,0,5000,200,0,10000: три нуля по 10, 500 и 200 по 5, остальные по 1.
	wantLen := 3*10 + 2*5 + 3*1
	if len(pool) != wantLen {
		t.Fatalf("pool length = %d, want %d", len(pool), wantLen)
	}

	counts := map[string]int{}
	for _, p := range pool {
		counts[p.String()]++
	}
	if counts["0"] != 30 {
		t.Fatalf("zero entries = %d, want 30", counts["0"])
	}
	if counts["500"] != 5 || counts["200"] != 5 {
		t.Fatalf("small prize entries = %d/%d, want 5/5", counts["500"], counts["200"])
	}
	if counts["1000"] != 1 || counts["5000"] != 1 || counts["10000"] != 1 {
		t.Fatalf("large prize entries = %d/%d/%d, want 1/1/1",
			counts["1000"], counts["5000"], counts["10000"])
	}
}

func TestDraw_DeterministicWithSeed(t *testing.T) {
	prizes, err := ParsePrizes(DefaultPrizes)
	if err != nil {
		t.Fatalf("ParsePrizes error: %v", err)
	}
	pool := WeightedPool(prizes)

	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		pa := Draw(pool, a.Intn)
		pb := Draw(pool, b.Intn)
		if !pa.Equal(pb) {
			t.Fatalf("draw %d differs: %s vs %s", i, pa, pb)
		}
	}
}

func TestDraw_OnlyConfiguredValues(t *testing.T) {
	prizes, err := ParsePrizes("0,250,9000")
	if err != nil {
		t.Fatalf("ParsePrizes error: %v", err)
	}
	pool := WeightedPool(prizes)
	allowed := map[string]bool{"0": true, "250": true, "9000": true}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		p := Draw(pool, rng.Intn)
		if !allowed[p.String()] {
			t.Fatalf("drawn prize %s not in configured pool", p)
		}
	}
}
