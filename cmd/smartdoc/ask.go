package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hyperjump/smartdoc/internal/cli"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/session"
)

var (
	askOutput    string
	askReindex   bool
	askFollowUps bool
)

var askCmd = &cobra.Command{
	Use:   "ask <files...> <question>",
	Short: "Ask one question about documents",
	Long: `Indexes the files (reusing an existing index) and prints a grounded answer
with its sources. The question is everything after the last existing file.`,
	Example: `  smartdoc ask report.pdf "What were the key findings?"
  smartdoc ask notes.md slides.docx what is covered in week 3`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

var toolCmd = &cobra.Command{
	Use:   "tool <summary|notes|quiz|topics> <files...>",
	Short: "Run a document tool",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTool,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, toolCmd} {
		c.Flags().StringVarP(&askOutput, "output", "o", "text", "output format (text or json)")
		c.Flags().BoolVar(&askReindex, "reindex", false, "rebuild the index even if one exists")
	}
	askCmd.Flags().BoolVar(&askFollowUps, "followups", false, "also suggest follow-up questions")
	rootCmd.AddCommand(askCmd, toolCmd)
}

// oneShot opens files into a fresh session and runs fn against it.
func oneShot(cmd *cobra.Command, files []string, fn func(ctx context.Context, sess *session.Session) error) error {
	a, logger, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	sess, err := a.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	doc, _, err := a.OpenDocuments(ctx, files, askReindex)
	if err != nil {
		return err
	}
	if err := sess.Attach(doc); err != nil {
		doc.Index.Close()
		return err
	}
	return fn(ctx, sess)
}

func runAsk(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(askOutput)
	if err != nil {
		return err
	}
	files, question := splitAskArgs(args)
	if len(files) == 0 {
		return errors.New("no document given: pass at least one existing file before the question")
	}
	return oneShot(cmd, files, func(ctx context.Context, sess *session.Session) error {
		ans, err := sess.Ask(ctx, question)
		if err != nil {
			return err
		}
		if err := cli.WriteAnswer(cmd.OutOrStdout(), ans, format); err != nil {
			return err
		}
		if !askFollowUps || format == cli.OutputJSON {
			return nil
		}
		suggestions, err := sess.FollowUps(ctx)
		if err != nil {
			return err
		}
		cli.WriteSuggestions(cmd.OutOrStdout(), suggestions)
		return nil
	})
}

func runTool(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(askOutput)
	if err != nil {
		return err
	}
	tool, err := rag.ParseTool(args[0])
	if err != nil {
		return err
	}
	return oneShot(cmd, args[1:], func(ctx context.Context, sess *session.Session) error {
		ans, err := sess.RunTool(ctx, tool)
		if err != nil {
			return err
		}
		return cli.WriteAnswer(cmd.OutOrStdout(), ans, format)
	})
}
