package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int
var quiet bool

var rootCmd = &cobra.Command{
	Use:   "seqgen",
	Short: "Randomized Unit Test Sequence Generation with Fault Classification and Minimal Test Archives",
	Long:  ``,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		formatter := prefixed.TextFormatter{
			FullTimestamp: true,
		}
		logrus.SetFormatter(&formatter)
		if quiet {
			verbosity = -1
		}
		setVerbosity(logrus.StandardLogger())
	},
}

// setVerbosity sets the level of log according to the amount of -v flags passed
func setVerbosity(log *logrus.Logger) {
	if verbosity < 0 {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase the verbosity of the log, can be passed multiple times")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print no log at all")
}
