package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/infra/logger"
	"github.com/datallboy/nntpgate/internal/nntp"
)

func newPostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post one article directly to the NNTP server",
		Long: "Post one article to the NNTP server without going through HTTP.\n" +
			"The body is read from --body-file, or from stdin when it is \"-\".",
		Args: cobra.NoArgs,
		RunE: runPost,
	}

	f := cmd.Flags()
	f.String("from", "", "From header")
	f.String("newsgroups", "", "comma separated newsgroups")
	f.String("subject", "", "Subject header")
	f.String("reply-to", "", "Message-ID to reference")
	f.String("body-file", "-", "file holding the article body")
	addNNTPFlags(cmd)

	for _, name := range []string{"from", "newsgroups", "subject"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runPost(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	req := domain.PostRequest{}
	req.From, _ = f.GetString("from")
	req.Newsgroups, _ = f.GetString("newsgroups")
	req.Subject, _ = f.GetString("subject")
	req.ReplyTo, _ = f.GetString("reply-to")

	bodyFile, _ := f.GetString("body-file")
	req.Body, err = readBody(cmd.InOrStdin(), bodyFile)
	if err != nil {
		return err
	}
	if req.Body == "" {
		return fmt.Errorf("%w: body must not be empty", domain.ErrInvalidRequest)
	}

	// Diagnostics go to stderr so stdout carries only the Message-ID
	log := logger.NewWithWriter(cmd.ErrOrStderr(), logger.ParseLevel(cfg.Log.Level), false)
	poster := nntp.NewPoster(cfg.Server(), nntp.WithLogger(log.Named("nntp")))

	res, err := poster.Post(cmd.Context(), req)
	if err != nil {
		return err
	}

	log.Debug("posted in %s, status %d", res.Duration, res.StatusCode)
	fmt.Fprintln(cmd.OutOrStdout(), res.MessageID)
	return nil
}

func readBody(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read body from stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}
