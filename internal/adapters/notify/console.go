package notify

// console.go — operator-facing arena report on stdout.

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/arena/internal/domain"
)

// Console implements ports.Notifier by printing the arena snapshot as a
// leaderboard table.
type Console struct {
	out io.Writer
}

// NewConsole creates a console notifier. A nil writer defaults to stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Notify prints the pool summary and the top-performer leaderboard.
func (c *Console) Notify(_ context.Context, stats domain.ArenaStats) error {
	now := time.Now().UTC().Format("2006-01-02 15:04:05")

	fmt.Fprintf(c.out, "\n[%s] arena — total $%.0f | allocated $%.0f | return %+.2f%%\n",
		now, stats.Pool.TotalCapital, stats.Allocated, stats.ArenaReturn*100)
	fmt.Fprintf(c.out, "agents — active:%d proving:%d simulating:%d retired:%d\n",
		stats.AgentsActive, stats.AgentsProving, stats.AgentsSimulating, stats.AgentsRetired)

	if len(stats.TopPerformers) == 0 {
		fmt.Fprintln(c.out, "\n  No ranked agents yet.")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Agent", "Strategy", "Tier", "Capital", "Fitness", "Return", "Win%", "Age")

	for _, agent := range stats.TopPerformers {
		table.Append(
			fmt.Sprintf("%d", agent.Rank),
			agent.DisplayName,
			agent.StrategyTag,
			string(agent.Tier),
			fmt.Sprintf("$%.0f", agent.Capital),
			fmt.Sprintf("%.2f", agent.FitnessScore),
			fmt.Sprintf("%+.1f%%", agent.TotalReturn()*100),
			fmt.Sprintf("%.0f%%", agent.WinRate()*100),
			fmt.Sprintf("%d", agent.Age),
		)
	}

	table.Render()
	return nil
}
