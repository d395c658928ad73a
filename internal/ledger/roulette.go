package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPrizes используется, пока администратор не задал свой список призов.
const DefaultPrizes = "0,500,1000,0,5000,200,0,10000"

// Веса призов: чем крупнее приз, тем реже он выпадает.
var (
	weightZero  = 10
	weightSmall = 5
	smallLimit  = decimal.New(500, 0)
)

// ParsePrizes разбирает список призов из строки с разделителем-запятой.
func ParsePrizes(raw string) ([]decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		raw = DefaultPrizes
	}

	parts := strings.Split(raw, ",")
	prizes := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		v, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse prize %q: %w", p, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("negative prize %q", p)
		}
		prizes = append(prizes, v)
	}
	if len(prizes) == 0 {
		return nil, fmt.Errorf("empty prize list")
	}
	return prizes, nil
}

// WeightedPool разворачивает список призов во взвешенное множество:
// нулевой приз входит 10 раз, приз до 500 включительно — 5 раз,
// более крупный — 1 раз. Пул строится заново перед каждым розыгрышем.
func WeightedPool(prizes []decimal.Decimal) []decimal.Decimal {
	pool := make([]decimal.Decimal, 0, len(prizes)*weightZero)
	for _, p := range prizes {
		n := 1
		switch {
		case p.IsZero():
			n = weightZero
		case p.LessThanOrEqual(smallLimit):
			n = weightSmall
		}
		for i := 0; i < n; i++ {
			pool = append(pool, p)
		}
	}
	return pool
}

// Draw выбирает приз равновероятно из взвешенного пула.
// Источник случайности передаётся снаружи, что позволяет
// детерминированные розыгрыши в тестах.
func Draw(pool []decimal.Decimal, intn func(n int) int) decimal.Decimal {
	return pool[intn(len(pool))]
}
