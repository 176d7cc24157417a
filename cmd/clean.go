package cmd

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DominicWuest/seqgen/pkg/seqgen"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanSnapshots bool
var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean job.yml",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Clean all files written by runs of a job",
	Long: `This command cleans all files written by runs of a job to its output directory.
This includes the progress snapshots, the persisted archive and the report.`,
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
		if job.OutputDir == "" {
			logrus.Info("Job has no output directory. Exiting...")
			return
		}

		files := []string{seqgen.SnapshotsFile}
		if !cleanSnapshots {
			files = append(files, seqgen.ArchiveFile, seqgen.ReportFile)
		}

		var existing []string
		for _, file := range files {
			path := filepath.Join(job.OutputDir, file)
			if _, err := os.Stat(path); err == nil {
				existing = append(existing, path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				logrus.Fatalf("Couldn't stat %s - %v", path, err)
			}
		}

		if len(existing) == 0 {
			logrus.Infof("No files to remove in %s. Exiting...", job.OutputDir)
			return
		}

		logrus.Infof("About to delete %d files in %s.", len(existing), job.OutputDir)

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		for _, path := range existing {
			logrus.Infof("Deleting %s", path)
			if err := os.Remove(path); err != nil {
				logrus.Fatalf("Failed to remove %s - %v", path, err)
			}
		}

		logrus.Info("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVarP(&cleanSnapshots, "snapshots", "s", false, "Only delete snapshots, not the archive and report.")
	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
