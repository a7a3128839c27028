package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/modelstore"
	"github.com/runger/warmroute/internal/prefetch/route"
)

var (
	modelLimit int
	modelFrom  string
	modelYes   bool
)

var modelCmd = &cobra.Command{
	Use:     "model",
	Short:   "Inspect or manage the learned transition model",
	GroupID: groupModel,
}

var modelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the strongest learned transitions",
	Long: `Show the learned transitions from the configured storage backend,
strongest first, with each edge's probability among its source's
destinations and the destination's visit count.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withModelStore(cmd.Context(), func(ms *modelstore.Store) error {
			m := ms.Load(cmd.Context())
			writeModel(cmd.OutOrStdout(), m, route.Route(modelFrom), modelLimit)
			return nil
		})
	},
}

var modelExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the model as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withModelStore(cmd.Context(), func(ms *modelstore.Store) error {
			m := ms.Load(cmd.Context())
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode model: %w", err)
			}
			data = append(data, '\n')
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported model to %s\n", args[0])
			return nil
		})
	},
}

var modelImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the model with an exported JSON model",
	Long: `Replace the stored model with one previously written by "model export".
Entries with negative weights or non-positive visit counts are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		m, err := modelstore.Decode(data)
		if err != nil {
			return fmt.Errorf("invalid model in %s: %w", args[0], err)
		}
		return withModelStore(cmd.Context(), func(ms *modelstore.Store) error {
			ms.Persist(cmd.Context(), m)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d routes\n", len(m.Visits))
			return nil
		})
	},
}

var modelResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget everything the model has learned",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !modelYes {
			return fmt.Errorf("refusing to reset without --yes")
		}
		return withModelStore(cmd.Context(), func(ms *modelstore.Store) error {
			ms.Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), paint(okStyle, "Model reset"))
			return nil
		})
	},
}

func init() {
	modelShowCmd.Flags().IntVarP(&modelLimit, "limit", "n", 20, "maximum transitions to show (0 for all)")
	modelShowCmd.Flags().StringVar(&modelFrom, "from", "", "only show transitions leaving this route")
	modelResetCmd.Flags().BoolVarP(&modelYes, "yes", "y", false, "confirm the reset")

	modelCmd.AddCommand(modelShowCmd, modelExportCmd, modelImportCmd, modelResetCmd)
	rootCmd.AddCommand(modelCmd)
}

// withModelStore opens the configured backend for the duration of fn.
func withModelStore(ctx context.Context, fn func(*modelstore.Store) error) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	backend, err := kv.Open(ctx, cfg.KVOptions(paths, logger))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	return fn(modelstore.New(backend, modelstore.Options{Logger: logger, Key: cfg.Engine.ModelKey}))
}

type edge struct {
	from, to route.Route
	weight   float64
	prob     float64
}

// edges flattens m's transitions, strongest first.
func edges(m *route.Model, from route.Route) []edge {
	var out []edge
	for src := range m.Transitions {
		if from != "" && src != from {
			continue
		}
		probs := m.Normalize(src)
		for dst, w := range m.Destinations(src) {
			out = append(out, edge{from: src, to: dst, weight: w, prob: probs[dst]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

func writeModel(out io.Writer, m *route.Model, from route.Route, limit int) {
	all := edges(m, from)
	fmt.Fprintf(out, "%s %s\n", paint(titleStyle, "Transitions"),
		paint(dimStyle, fmt.Sprintf("(%d edges, %d routes visited)", len(all), len(m.Visits))))
	if len(all) == 0 {
		fmt.Fprintln(out, paint(dimStyle, "  (none learned yet)"))
		return
	}

	shown := all
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	width := routeColumnWidth(termWidth())
	for _, e := range shown {
		fmt.Fprintf(out, "  %s -> %s %s %s\n",
			column(string(e.from), width),
			column(string(e.to), width),
			paint(scoreStyle, fmt.Sprintf("%8.2f", e.weight)),
			paint(dimStyle, fmt.Sprintf("p=%.2f visits=%d", e.prob, m.Visits[e.to])))
	}
	if len(shown) < len(all) {
		fmt.Fprintf(out, "  %s\n", paint(dimStyle, fmt.Sprintf("... %d more", len(all)-len(shown))))
	}
}
