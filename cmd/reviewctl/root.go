package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/review"
)

const defaultServer = "http://localhost:8080/api"

type rootOptions struct {
	server  string
	token   string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Review audit forms against an AuditDesk server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	server := os.Getenv("AUDITDESK_SERVER")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "API base URL (env AUDITDESK_SERVER)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("AUDITDESK_TOKEN"), "Access token (env AUDITDESK_TOKEN)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print response payloads of failed requests")

	cmd.AddCommand(
		newShowCmd(opts),
		newIssuesCmd(opts),
		newActionsCmd(opts),
		newAnalyzeCmd(opts),
		newApproveCmd(opts),
		newRejectCmd(opts),
		newEditIssueCmd(opts),
		newDeleteIssueCmd(opts),
	)
	return cmd
}

// sessionFunc runs against a loaded session.
type sessionFunc func(cmd *cobra.Command, s *review.Session, args []string) error

// withSession opens a session for the form id in args[0], loads it and hands
// it to fn. autoAnalysis lets Load start a missing analysis.
func withSession(opts *rootOptions, autoAnalysis bool, fn sessionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		formID, err := parseID("form id", args[0])
		if err != nil {
			return err
		}

		client := review.NewClient(opts.server, opts.token)
		s := review.NewSession(client, formID, review.WithAutoAnalysis(autoAnalysis))
		defer s.Close()

		if err := s.Load(cmd.Context()); err != nil {
			return report(cmd, opts, err)
		}
		if err := fn(cmd, s, args); err != nil {
			return report(cmd, opts, err)
		}
		return nil
	}
}

// report prints err for a person and returns it.
func report(cmd *cobra.Command, opts *rootOptions, err error) error {
	w := cmd.ErrOrStderr()

	var (
		re    *review.RequestError
		verrs domain.ValidationErrors
	)
	switch {
	case errors.As(err, &re):
		_, _ = fmt.Fprintf(w, "%s: %s\n", re.Summary(), re.Details())
		for _, f := range re.FieldErrors().Fields() {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", f, re.FieldErrors()[f])
		}
		if opts.verbose && len(re.Payload) > 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n%s\n", re.Method, re.Path, re.Payload)
		}
	case errors.As(err, &verrs):
		_, _ = fmt.Fprintln(w, "Please fix the following:")
		for _, f := range verrs.Fields() {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", f, verrs[f])
		}
	default:
		_, _ = fmt.Fprintln(w, err)
	}
	return err
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}
