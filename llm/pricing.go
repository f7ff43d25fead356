// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import "strings"

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

// Pricing maps model names to prices. Unknown models cost zero rather
// than failing the run; cost accounting is best effort.
type Pricing map[string]ModelPrice

// DefaultPricing covers the models the runtime is commonly pointed at.
// Callers with other models or negotiated rates supply their own table
// through config.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4o":        {InputPerM: 2.50, OutputPerM: 10.00},
		"gpt-4o-mini":   {InputPerM: 0.15, OutputPerM: 0.60},
		"gpt-4.1":       {InputPerM: 2.00, OutputPerM: 8.00},
		"gpt-4-turbo":   {InputPerM: 10.00, OutputPerM: 30.00},
		"gpt-3.5-turbo": {InputPerM: 0.50, OutputPerM: 1.50},
	}
}

// Cost computes the USD cost of one call, using exact match first and
// then the longest matching prefix.
func (p Pricing) Cost(model string, inputTokens, outputTokens int) float64 {
	price, ok := p[model]
	if !ok {
		bestLen := 0
		for name, pr := range p {
			if strings.HasPrefix(model, name) && len(name) > bestLen {
				price, ok = pr, true
				bestLen = len(name)
			}
		}
	}
	if !ok {
		return 0
	}
	return float64(inputTokens)*price.InputPerM/1e6 + float64(outputTokens)*price.OutputPerM/1e6
}
