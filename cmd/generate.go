package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/DominicWuest/seqgen/internal/sample"
	"github.com/DominicWuest/seqgen/pkg/seqgen"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var generateCut string
var generateBudget time.Duration
var generateStrategy string
var generateSeed int64
var generateOutput string
var generateExport string

var generateCmd = &cobra.Command{
	Use:   "generate job.yml",
	Short: "Generate tests for the sample classes based on a job.yml",
	Long: `Generate tests for the sample classes based on a job.yml.
The class under test is picked with --cut, all other sample classes may be used as arguments.

Tests are generated until the budget of the job is spent or the command is interrupted.
Afterwards, the coverage reached by the archived tests and all faults found are printed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobYaml, err := os.Open(args[0])
		if err != nil {
			logrus.Fatalf("Failed to open job yaml - %v", err)
		}
		job, err := seqgen.GetJobFromConfig(jobYaml)
		jobYaml.Close()
		if err != nil {
			logrus.Fatalf("Failed to read job config from yaml - %v", err)
		}

		// Flags override the config
		if cmd.Flags().Changed("budget") {
			job.Budget = generateBudget
		}
		if cmd.Flags().Changed("strategy") {
			switch strings.ToLower(generateStrategy) {
			case "batch":
				job.Strategy = seqgen.Batch
			case "incremental":
				job.Strategy = seqgen.Incremental
			default:
				logrus.Fatalf("%s is not a valid strategy", generateStrategy)
			}
		}
		if cmd.Flags().Changed("seed") {
			job.Seed = generateSeed
		}
		if cmd.Flags().Changed("output") {
			job.OutputDir = generateOutput
		}

		job.Log = logrus.New()
		job.Log.SetFormatter(logrus.StandardLogger().Formatter)
		setVerbosity(job.Log)

		registry, err := sample.Registry(generateCut)
		if err != nil {
			logrus.Fatalf("Failed to create registry for %s - %v", generateCut, err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		report, err := job.Run(ctx, registry)
		if report == nil {
			logrus.Fatalf("Failed to run job - %v", err)
		}
		if err != nil {
			logrus.Warnf("Job did not finish - %v", err)
		}

		if err := report.Dump(os.Stdout); err != nil {
			logrus.Fatalf("Failed to print report - %v", err)
		}

		if generateExport != "" {
			if err := job.Export(generateExport); err != nil {
				logrus.Fatalf("Failed to export results - %v", err)
			}
			logrus.Infof("Exported results to %s", generateExport)
		}
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateCut, "cut", "c", "Account", "The sample class under test")
	generateCmd.Flags().DurationVarP(&generateBudget, "budget", "b", 0, "Overrides the budget of the job")
	generateCmd.Flags().StringVarP(&generateStrategy, "strategy", "s", "", "Overrides the strategy of the job (batch or incremental)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Overrides the seed of the job")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Overrides the output directory of the job")
	generateCmd.Flags().StringVarP(&generateExport, "export", "e", "", "Copy the output directory of the job here once it is done")
}
