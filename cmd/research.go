package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/briefer/config"
	"github.com/mohammad-safakhou/briefer/internal/research"
	srv "github.com/mohammad-safakhou/briefer/internal/server"
	"github.com/mohammad-safakhou/briefer/provider"
)

// researchCMD runs a single query end to end and prints the briefing,
// without the HTTP server or any persistence.
func researchCMD() *cobra.Command {
	var cfgPath string
	var depth string

	var cmd = &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research query and print the briefing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Validate(); err != nil {
				return err
			}
			query := strings.Join(args, " ")

			logger := log.New(os.Stderr, "[RESEARCH] ", log.LstdFlags)
			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			toolset := srv.BuildToolset(cfg, llm, logger)

			orch := research.NewOrchestrator(cfg, llm, toolset,
				research.NewMemoryCheckpointManager(), research.NopSink{}, logger)

			job := orch.Execute(cmd.Context(), research.Request{
				JobID: uuid.NewString(),
				Query: query,
				Depth: research.Depth(depth),
			})
			if job.MasterSynthesis == "" {
				return fmt.Errorf("research produced no synthesis")
			}

			fmt.Println(job.MasterSynthesis)
			if job.Strategic != "" {
				fmt.Printf("\n## Strategic recommendations\n\n")
				fmt.Println(job.Strategic)
			}
			if job.QASummary != "" {
				fmt.Printf("\n## Anticipated questions\n\n")
				fmt.Println(job.QASummary)
			}
			fmt.Fprintf(os.Stderr, "\ndepth=%s studies=%d tokens=%d cost=$%.4f human-hours=%.1f\n",
				job.Depth, job.Stats.StudiesRun,
				job.Stats.PromptTokens+job.Stats.CompletionTokens,
				job.Stats.CostUSD, job.Stats.HumanHours(job.Depth))
			return nil
		},
	}
	cmd.Flags().StringVar(&depth, "depth", "", "quick, standard or deep (default: detect from query)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
