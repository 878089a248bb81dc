// Command reactorctl is a playground binary exercising the reactor
// runtime end to end: it wires a small signal/computed/effect graph,
// drives a handful of writes and atomic scopes through it, and prints a
// report of what ran.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/reactorlib/reactor"
	"github.com/reactorlib/reactor/devtoolshooks"
)

func main() {
	cmd := &cli.Command{
		Name:  "reactorctl",
		Usage: "exercise the reactor runtime and report what happened",
		Commands: []*cli.Command{
			demoCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "run a scripted signal/computed/effect scenario",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "writes", Value: 500, Usage: "number of signal writes to issue"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDemo(int(cmd.Int("writes")))
		},
	}
}

func runDemo(writes int) error {
	sink := devtoolshooks.NewTimingSink(2000)
	rt := reactor.New(reactor.WithHooks(sink))

	count := reactor.NewSignalIn(rt, 0)
	doubled := reactor.NewComputedIn(rt, func() int { return count.Read() * 2 })

	var effectRuns int
	reactor.NewEffectIn(rt, func() {
		_ = doubled.Read()
		effectRuns++
	})

	start := time.Now()
	for i := 0; i < writes; i++ {
		count.Set(i)
	}

	var rolledBack int
	_ = rt.Atomic(func() error {
		count.Set(-1)
		rolledBack++
		return fmt.Errorf("demo: forcing a rollback to show atomic scopes work")
	})

	elapsed := time.Since(start)

	fmt.Printf("ran %s writes in %s (effect ran %s times; final count = %d)\n",
		humanize.Comma(int64(writes)),
		elapsed,
		humanize.Comma(int64(effectRuns)),
		count.Peek(),
	)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"node kind", "count", "avg", "p50", "p99"})
	for kind, m := range sink.Report() {
		t.AppendRow(table.Row{
			kind,
			humanize.Comma(int64(m.Count)),
			m.Time.Avg,
			m.Time.P50,
			m.Time.P99,
		})
	}
	t.Render()

	return nil
}
