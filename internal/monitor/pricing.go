package monitor

// modelPrice — тариф за 1М токенов, USD.
type modelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

// PriceTable отвечает за оценку стоимости задачи по имени модели.
// Таблица статическая: это ОЦЕНКА для дашборда, а не биллинг — без
// разбивки на prompt/completion, без кэш-скидок и батч-тарифов.
type PriceTable struct {
	prices map[string]modelPrice
}

func NewPriceTable() *PriceTable {
	return &PriceTable{prices: map[string]modelPrice{
		"gpt-4-turbo":         {InputPerM: 10.00, OutputPerM: 30.00},
		"gpt-4o":              {InputPerM: 2.50, OutputPerM: 10.00},
		"gpt-4o-mini":         {InputPerM: 0.15, OutputPerM: 0.60},
		"gpt-3.5-turbo":       {InputPerM: 0.50, OutputPerM: 1.50},
		"claude-3-opus":       {InputPerM: 15.00, OutputPerM: 75.00},
		"claude-3-5-sonnet":   {InputPerM: 3.00, OutputPerM: 15.00},
		"claude-3-haiku":      {InputPerM: 0.25, OutputPerM: 1.25},
		"llama-3.1-70b":       {InputPerM: 0.90, OutputPerM: 0.90},
		"mistral-large-24.11": {InputPerM: 2.00, OutputPerM: 6.00},
	}}
}

// Cost возвращает оценку стоимости: среднее входного и выходного тарифа,
// умноженное на потраченные токены. Для неизвестной модели — 0 и false,
// решение о логировании остается за вызывающим.
func (p *PriceTable) Cost(model string, tokensUsed int64) (float64, bool) {
	price, ok := p.prices[model]
	if !ok {
		return 0, false
	}
	perM := (price.InputPerM + price.OutputPerM) / 2
	return perM * float64(tokensUsed) / 1e6, true
}
