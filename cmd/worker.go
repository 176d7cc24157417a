package cmd

import (
	"os"
	"os/signal"
	"time"

	"github.com/DominicWuest/seqgen/internal/sample"
	"github.com/DominicWuest/seqgen/internal/server"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerPort int
var workerCut string
var workerBudget time.Duration
var workerNilPolicy string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a worker server executing tests of the sample classes",
	Long: `Start a worker server executing tests of the sample classes.
Jobs list the worker's URL under remoteWorkers to share the execution of their tests with it.

If the port is 0, a free port is picked and logged.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := sample.Registry(workerCut)
		if err != nil {
			logrus.Fatalf("Failed to create registry for %s - %v", workerCut, err)
		}
		policy, err := fault.NilPolicyByName(workerNilPolicy)
		if err != nil {
			logrus.Fatalf("Invalid nil policy - %v", err)
		}

		if workerPort == 0 {
			if workerPort, err = freeport.GetFreePort(); err != nil {
				logrus.Fatalf("Failed to get a free port - %v", err)
			}
		}

		log := logrus.WithField("port", workerPort)
		local := executor.NewLocal(registry, fault.NewClassifier(policy, log), workerBudget, executor.DefaultGrace, log)

		if _, err := server.NewServer(server.HTTP, workerPort, local, log); err != nil {
			logrus.Fatalf("Failed to start worker server - %v", err)
		}
		logrus.Warnf("Worker running on http://localhost:%d", workerPort)

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		<-interrupt
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVarP(&workerPort, "port", "p", 40032, "The port on which to start the server, or 0 for any free port")
	workerCmd.Flags().StringVarP(&workerCut, "cut", "c", "Account", "The sample class under test")
	workerCmd.Flags().DurationVarP(&workerBudget, "budget", "b", executor.DefaultBudget, "The default budget of a single execution")
	workerCmd.Flags().StringVar(&workerNilPolicy, "nil-policy", "nil-args", "How nil dereferences with nil arguments are classified (nil-args, strict or flag)")
}
