package domain

// CapitalPool partitions the treasury for the lifetime of the process.
// TotalCapital never changes; the allocated amount is always derived from
// agent capitals and never stored.
type CapitalPool struct {
	TotalCapital   float64
	StableReserve  float64
	ArenaCapital   float64
	ProvingCapital float64
}

// NewCapitalPool splits total capital by the configured fractions.
func NewCapitalPool(total, stableFrac, arenaFrac, provingFrac float64) CapitalPool {
	return CapitalPool{
		TotalCapital:   total,
		StableReserve:  total * stableFrac,
		ArenaCapital:   total * arenaFrac,
		ProvingCapital: total * provingFrac,
	}
}

// ConservationEpsilon absorbs float64 cash arithmetic noise in invariant
// checks.
const ConservationEpsilon = 1e-6
