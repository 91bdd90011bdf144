package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/smartdoc/internal/cli"
	"github.com/hyperjump/smartdoc/internal/indexer"
)

var (
	indexReindex bool
	listOutput   string
)

var indexCmd = &cobra.Command{
	Use:   "index <files or directory...>",
	Short: "Build (or reuse) the index for documents",
	Long: `Builds the index for the given files without starting a chat. A directory
argument expands to the supported files directly inside it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Manage persisted indexes",
}

var indexesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted indexes",
	Args:  cobra.NoArgs,
	RunE:  runIndexesList,
}

var indexesDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a persisted index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexesDelete,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and configuration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	indexCmd.Flags().BoolVar(&indexReindex, "reindex", false, "rebuild the index even if one exists")
	indexesListCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format (text or json)")
	statusCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format (text or json)")
	indexesCmd.AddCommand(indexesListCmd, indexesDeleteCmd)
	rootCmd.AddCommand(indexCmd, indexesCmd, statusCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	res, err := a.Indexer.Index(context.Background(), paths, indexReindex)
	if err != nil {
		return err
	}
	defer res.Index.Close()

	state := "reused"
	if res.Built {
		state = "built"
	}
	cmd.Printf("%s index %s: %d chunks from %d file(s)\n", state, res.Key, res.Index.Count(), len(res.Files))
	return nil
}

// expandInputs replaces directory arguments with their supported files.
func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		files, err := indexer.SupportedFiles(arg)
		if err != nil {
			// Not a directory: index the path as given.
			paths = append(paths, arg)
			continue
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no supported files in %s", arg)
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

func runIndexesList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(listOutput)
	if err != nil {
		return err
	}
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	manifests, err := a.Store.List()
	if err != nil {
		return err
	}
	return cli.WriteIndexes(cmd.OutOrStdout(), manifests, format)
}

func runIndexesDelete(cmd *cobra.Command, args []string) error {
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	if err := a.Store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	cmd.Printf("deleted index %s\n", args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(listOutput)
	if err != nil {
		return err
	}
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	st, err := a.Status()
	if err != nil {
		return err
	}
	return cli.WriteStatus(cmd.OutOrStdout(), st, format)
}
