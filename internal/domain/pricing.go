package domain

// PricingParams are the already-resolved pricing inputs for one service
// class. They never change while a trip is active.
type PricingParams struct {
	BaseCost      float64
	OnWayPerKm    float64
	OnWayPerMin   float64
	WaitingPerMin float64
	TripPerKm     float64
	TripPerMin    float64
}

// ComputeBilling derives the full cost breakdown from the current metrics.
// It is pure and deterministic: two clients applying the same metric values
// always derive the same totals. The free on-way kilometers and free waiting
// minutes contribute zero cost.
func ComputeBilling(m TripMetrics, freeOnWayKm, freeWaitingMin float64, p PricingParams) TripBilling {
	b := TripBilling{
		BaseCost:    p.BaseCost,
		OnWayCost:   billable(m.OnWayDistanceKm, freeOnWayKm)*p.OnWayPerKm + m.OnWayDurationMin*p.OnWayPerMin,
		WaitingCost: billable(m.WaitingDurationMin, freeWaitingMin) * p.WaitingPerMin,
		TripCost:    m.TripDistanceKm*p.TripPerKm + m.TripDurationMin*p.TripPerMin,
	}
	b.TotalCost = b.BaseCost + b.OnWayCost + b.WaitingCost + b.TripCost
	return b
}

func billable(value, free float64) float64 {
	if value <= free {
		return 0
	}
	return value - free
}
