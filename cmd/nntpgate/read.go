package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datallboy/nntpgate/internal/infra/logger"
	"github.com/datallboy/nntpgate/internal/message"
	"github.com/datallboy/nntpgate/internal/nntp"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [article]",
		Short: "List a newsgroup or print one article",
		Long: "Without an argument, print one page of the group index, newest first.\n" +
			"With an article number or <message-id>, print that article decoded.",
		Args: cobra.MaximumNArgs(1),
		RunE: runRead,
	}

	f := cmd.Flags()
	f.String("group", "", "newsgroup to read (default from config)")
	f.Int("page", 1, "index page, 1 is newest")
	addNNTPFlags(cmd)

	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), logger.ParseLevel(cfg.Log.Level), false)
	reader := nntp.NewReader(cfg.Server(),
		nntp.WithReaderLogger(log.Named("reader")),
		nntp.WithMaxArticleBytes(cfg.Reader.MaxArticleBytes),
	)
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		raw, err := reader.Article(cmd.Context(), cfg.Reader.Group, args[0])
		if err != nil {
			return err
		}
		v, err := message.Parse(args[0], raw)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "From: %s\nSubject: %s\nDate: %s\nMessage-ID: %s\n\n%s", v.From, v.Subject, v.Date, v.MessageID, v.Body)
		for _, a := range v.Attachments {
			fmt.Fprintf(out, "[attachment %d] %s (%s, %d bytes)\n", a.Index, a.Filename, a.ContentType, a.Size)
		}
		return nil
	}

	if cfg.Reader.Group == "" {
		return errors.New("--group or reader.group is required")
	}
	page, _ := cmd.Flags().GetInt("page")

	res, err := reader.Overview(cmd.Context(), cfg.Reader.Group, page, cfg.Reader.PageSize)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, o := range res.Articles {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.Number, message.FormatDate(o.Date), message.DecodeHeader(o.From), message.DecodeHeader(o.Subject))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "page %d of %d\n", res.Page, res.TotalPages)
	return nil
}
