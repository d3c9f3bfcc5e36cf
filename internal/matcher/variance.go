package matcher

import (
	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
)

// ApplyVariance computes the variance fields of every cell. VarianceActual
// stays null until an actual has posted so "no data" is distinguishable from
// "on budget". Variance mirrors VarianceActual when set, else VarianceForecast.
func ApplyVariance(cells []*models.ForecastCell) {
	for _, cell := range cells {
		if cell == nil {
			continue
		}
		cell.VarianceForecast = cell.Forecast.Sub(cell.Planned)
		if cell.Actual.IsPositive() {
			va := cell.Actual.Sub(cell.Planned)
			cell.VarianceActual = decimal.NewNullDecimal(va)
			cell.Variance = va
			continue
		}
		cell.VarianceActual = decimal.NullDecimal{}
		cell.Variance = cell.VarianceForecast
	}
}
