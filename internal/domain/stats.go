package domain

// ArenaStats is the operator-facing snapshot of the arena.
type ArenaStats struct {
	Pool             CapitalPool
	Allocated        float64 // Σ capital of non-retired agents, derived
	AgentsActive     int
	AgentsProving    int
	AgentsSimulating int
	AgentsRetired    int
	ArenaReturn      float64 // aggregate return of active agents
	TopPerformers    []Agent // ranked, best first
}
