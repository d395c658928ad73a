package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCommissionPlan_TaskFullChain(t *testing.T) {
	earnings := decimal.RequireFromString("80.00")

	plan := CommissionPlan(earnings, TaskCommissionRates, 3)
	if len(plan) != 3 {
		t.Fatalf("plan length = %d, want 3", len(plan))
	}

	want := []string{"16", "2.4", "1.6"}
	for i, c := range plan {
		if c.Tier != i+1 {
			t.Fatalf("credit %d tier = %d, want %d", i, c.Tier, i+1)
		}
		if c.Amount.String() != want[i] {
			t.Fatalf("tier %d amount = %s, want %s", c.Tier, c.Amount, want[i])
		}
	}

	total := TotalCommission(plan)
	if !total.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("total commission = %s, want 20.00", total)
	}
}

func TestCommissionPlan_TruncatedChain(t *testing.T) {
	earnings := decimal.RequireFromString("80.00")

	tests := []struct {
		name  string
		depth int
		want  int
	}{
		{name: "no referrers", depth: 0, want: 0},
		{name: "one referrer", depth: 1, want: 1},
		{name: "two referrers", depth: 2, want: 2},
		{name: "depth beyond rates", depth: 10, want: 3},
		{name: "negative depth", depth: -1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := CommissionPlan(earnings, TaskCommissionRates, tt.depth)
			if len(plan) != tt.want {
				t.Fatalf("plan length = %d, want %d", len(plan), tt.want)
			}
		})
	}
}

func TestCommissionPlan_LevelRates(t *testing.T) {
	cost := decimal.RequireFromString("15000.00")

	plan := CommissionPlan(cost, LevelCommissionRates, 3)

	want := []string{"2250", "450", "150"}
	for i, c := range plan {
		if c.Amount.String() != want[i] {
			t.Fatalf("tier %d amount = %s, want %s", c.Tier, c.Amount, want[i])
		}
	}
}

func TestQualifiedDepth(t *testing.T) {
	tests := []struct {
		name     string
		invested []bool
		want     int
	}{
		{name: "empty chain", invested: nil, want: 0},
		{name: "full invested chain", invested: []bool{true, true, true}, want: 3},
		{name: "tier 1 uninvested", invested: []bool{false, true, true}, want: 0},
		{name: "tier 2 uninvested", invested: []bool{true, false, true}, want: 1},
		{name: "tier 3 uninvested", invested: []bool{true, true, false}, want: 2},
		{name: "single invested referrer", invested: []bool{true}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualifiedDepth(tt.invested); got != tt.want {
				t.Fatalf("qualified depth = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommissionPlan_GatedByQualifiedDepth(t *testing.T) {
	cost := decimal.RequireFromString("15000.00")

	// Реферер второго яруса без активного уровня: комиссию получает
	// только первый ярус, третий не получает ничего несмотря на инвестицию.
	plan := CommissionPlan(cost, LevelCommissionRates, QualifiedDepth([]bool{true, false, true}))

	if len(plan) != 1 {
		t.Fatalf("plan length = %d, want 1", len(plan))
	}
	if plan[0].Tier != 1 {
		t.Fatalf("tier = %d, want 1", plan[0].Tier)
	}
	if plan[0].Amount.String() != "2250" {
		t.Fatalf("tier 1 amount = %s, want 2250", plan[0].Amount)
	}
}

func TestCommissionPlan_RoundsToCents(t *testing.T) {
	// 333.33 * 0.03 = 9.9999 -> 10.00 после округления
	plan := CommissionPlan(decimal.RequireFromString("333.33"), TaskCommissionRates, 3)

	if got := plan[1].Amount.String(); got != "10" {
		t.Fatalf("tier 2 amount = %s, want 10", got)
	}
}
