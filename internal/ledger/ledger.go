// Package ledger содержит чистые расчёты движения средств:
// комиссионные начисления по реферальной цепочке и розыгрыш рулетки.
package ledger

import "github.com/shopspring/decimal"

// MaxTiers ограничивает глубину реферальной цепочки.
// Комиссии выплачиваются максимум трём предкам.
const MaxTiers = 3

// TaskCommissionRates задаёт ставки комиссий за выполненное задание
// по ярусам 1..3. Выплачиваются без требования активного уровня у реферера.
var TaskCommissionRates = []decimal.Decimal{
	decimal.New(20, -2), // 0.20
	decimal.New(3, -2),  // 0.03
	decimal.New(2, -2),  // 0.02
}

// LevelCommissionRates задаёт ставки комиссий за покупку уровня
// по ярусам 1..3. Выплачиваются только рефереру с активным уровнем.
var LevelCommissionRates = []decimal.Decimal{
	decimal.New(15, -2), // 0.15
	decimal.New(3, -2),  // 0.03
	decimal.New(1, -2),  // 0.01
}

// Credit описывает одно комиссионное начисление.
// Сумма зачисляется и на доступный, и на субсидийный баланс реферера.
type Credit struct {
	Tier   int
	Amount decimal.Decimal
}

// CommissionPlan строит план начислений для базовой суммы по ставкам rates,
// обрезанный до depth ярусов (длина доступной цепочки рефереров).
// Суммы округляются до двух знаков.
func CommissionPlan(base decimal.Decimal, rates []decimal.Decimal, depth int) []Credit {
	if depth > len(rates) {
		depth = len(rates)
	}
	if depth < 0 {
		depth = 0
	}

	plan := make([]Credit, 0, depth)
	for i := 0; i < depth; i++ {
		plan = append(plan, Credit{
			Tier:   i + 1,
			Amount: base.Mul(rates[i]).Round(2),
		})
	}
	return plan
}

// QualifiedDepth возвращает число ярусов, получающих комиссию за покупку
// уровня. invested[i] — имеет ли реферер яруса i+1 активный уровень.
// Первый же реферер без активного уровня обрывает цепочку целиком:
// ярусы за ним комиссию не получают, даже если сами инвестировали.
func QualifiedDepth(invested []bool) int {
	depth := 0
	for _, ok := range invested {
		if !ok {
			break
		}
		depth++
	}
	return depth
}

// TotalCommission возвращает сумму всех начислений плана.
func TotalCommission(plan []Credit) decimal.Decimal {
	total := decimal.Zero
	for _, c := range plan {
		total = total.Add(c.Amount)
	}
	return total
}
