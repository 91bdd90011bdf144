package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hyperjump/smartdoc/internal/session"
	"github.com/hyperjump/smartdoc/internal/tui"
)

var (
	chatReindex   bool
	chatFollowUps bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [files...]",
	Short: "Chat about documents in the terminal",
	Long: `Opens the interactive chat. Files given on the command line are indexed
and attached first; use /open inside the chat to switch documents.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatReindex, "reindex", false, "rebuild the index even if one exists")
	chatCmd.Flags().BoolVar(&chatFollowUps, "followups", false, "suggest follow-up questions after every answer")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, logger, err := openApp(logFile)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(args) > 0 {
		cmd.Printf("Indexing %d file(s)...\n", len(args))
		doc, _, err := a.OpenDocuments(ctx, args, chatReindex)
		if err != nil {
			return err
		}
		if err := sess.Attach(doc); err != nil {
			doc.Index.Close()
			return err
		}
	}

	m := tui.New(ctx, sess, tui.Options{
		Open: func(ctx context.Context, paths []string) (*session.Document, error) {
			doc, _, err := a.OpenDocuments(ctx, paths, false)
			return doc, err
		},
		ExportPath:    a.Config.Export.Filename,
		ExportTitle:   a.Config.Export.Title,
		AutoFollowUps: chatFollowUps,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}
