// Package pricing computes discount previews for quotation packages.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

// Compute prices a package. It is pure: the same input always yields the same preview.
func Compute(in Input) Preview {
	cfg := in.Discounts

	devGross := shared.NonNegative(in.DevelopmentCost)
	devPct := developmentPercent(cfg)
	devNet := shared.ApplyDiscount(devGross, devPct)

	base := priceCategory(in.BaseServices, func(s Service) float64 {
		return servicePercent(cfg, cfg.Granular.BaseServices, cfg.General.AppliesTo.BaseServices, s.ID)
	})
	optional := priceCategory(in.OptionalServices, func(s Service) float64 {
		return servicePercent(cfg, cfg.Granular.OptionalServices, cfg.General.AppliesTo.OptionalServices, s.ID)
	})

	subtotal := devNet.Add(base.Net).Add(optional.Net)
	directPct := shared.ClampPercent(cfg.Direct)
	total := shared.ApplyDiscount(subtotal, directPct)
	gross := devGross.Add(base.Original).Add(optional.Original)
	savings := gross.Sub(total)

	singlePct := shared.ClampPercent(cfg.SinglePayment)

	return Preview{
		Development: LineAmount{
			Name:            "development",
			Original:        devGross,
			Net:             devNet,
			DiscountPercent: devPct,
		},
		DevelopmentLumpSum:    shared.ApplyDiscount(devNet, singlePct),
		SinglePaymentPercent:  singlePct,
		BaseServices:          base,
		OptionalServices:      optional,
		Subtotal:              subtotal,
		DirectDiscountPercent: directPct,
		DirectDiscountAmount:  subtotal.Sub(total),
		Total:                 total,
		GrossTotal:            gross,
		TotalSavings:          savings,
		SavingsPercent:        shared.Percentage(savings, gross),
	}
}

func developmentPercent(cfg DiscountConfig) float64 {
	switch cfg.Kind {
	case DiscountGranular:
		return shared.ClampPercent(cfg.Granular.Development)
	case DiscountGeneral:
		if cfg.General.AppliesTo.Development {
			return shared.ClampPercent(cfg.General.Percent)
		}
	}
	return 0
}

func servicePercent(cfg DiscountConfig, granular map[string]float64, generalApplies bool, id string) float64 {
	switch cfg.Kind {
	case DiscountGranular:
		return shared.ClampPercent(granular[id])
	case DiscountGeneral:
		if generalApplies {
			return shared.ClampPercent(cfg.General.Percent)
		}
	}
	return 0
}

func priceCategory(services []Service, percent func(Service) float64) CategoryTotal {
	total := CategoryTotal{
		Lines:    make([]LineAmount, 0, len(services)),
		Original: decimal.Zero,
		Net:      decimal.Zero,
	}
	for _, svc := range services {
		pct := percent(svc)
		original := shared.NonNegative(svc.Price)
		net := shared.ApplyDiscount(original, pct)
		total.Lines = append(total.Lines, LineAmount{
			ID:              svc.ID,
			Name:            svc.Name,
			Original:        original,
			Net:             net,
			DiscountPercent: pct,
		})
		total.Original = total.Original.Add(original)
		total.Net = total.Net.Add(net)
	}
	return total
}
