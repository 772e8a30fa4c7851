package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/review"
)

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <form-id>",
		Short: "Show a form with its answers, analysis and current issues",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, true, func(cmd *cobra.Command, s *review.Session, _ []string) error {
			s.Wait()
			v := s.View()
			out := cmd.OutOrStdout()

			printForm(out, v)
			printAnswers(out, v)
			printAnalysis(out, v)
			return printIssues(out, v)
		}),
	}
}

func newIssuesCmd(opts *rootOptions) *cobra.Command {
	var previous bool
	cmd := &cobra.Command{
		Use:   "issues <form-id>",
		Short: "List the issues of a form",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, _ []string) error {
			if previous {
				if err := s.SetVersion(cmd.Context(), domain.IssueVersionPrevious); err != nil {
					return err
				}
			}
			return printIssues(cmd.OutOrStdout(), s.View())
		}),
	}
	cmd.Flags().BoolVar(&previous, "previous", false, "Show the previous revision's issues")
	return cmd
}

func newActionsCmd(opts *rootOptions) *cobra.Command {
	var previous bool
	cmd := &cobra.Command{
		Use:   "actions <form-id> <issue-id>",
		Short: "List the corrective actions of an issue",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, args []string) error {
			issueID, err := parseID("issue id", args[1])
			if err != nil {
				return err
			}
			if previous {
				if err := s.SetVersion(cmd.Context(), domain.IssueVersionPrevious); err != nil {
					return err
				}
			}
			if err := s.ToggleCorrectiveActions(cmd.Context(), issueID); err != nil {
				return err
			}

			actions, _ := s.View().CorrectiveActions(issueID)
			out := cmd.OutOrStdout()
			if len(actions) == 0 {
				_, _ = fmt.Fprintln(out, "No corrective actions recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tDESCRIPTION\tCOMPLETED\tVERIFIED")
			for _, a := range actions {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Description, orNA(a.CompletionDate), orNA(a.VerificationDate))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVar(&previous, "previous", false, "Look the issue up in the previous revision")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <form-id>",
		Short: "Show the AI analysis of a form, generating it when missing",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, true, func(cmd *cobra.Command, s *review.Session, _ []string) error {
			s.Wait()
			v := s.View()
			if v.Analysis == review.AnalysisFailed {
				return fmt.Errorf("analysis failed: %s", v.AnalysisError)
			}
			printAnalysis(cmd.OutOrStdout(), v)
			return nil
		}),
	}
}

func newApproveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <form-id>",
		Short: "Approve a form",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, _ []string) error {
			if err := s.SubmitStatus(cmd.Context(), review.LabelApproved, domain.IssueDraft{}); err != nil {
				return err
			}
			printForm(cmd.OutOrStdout(), s.View())
			return nil
		}),
	}
}

// issueFlags are the fields of an issue draft.
type issueFlags struct {
	description string
	severity    string
	due         string
}

func (f *issueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "What is wrong")
	cmd.Flags().StringVar(&f.severity, "severity", "", "Low, Medium, High or Critical")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date, YYYY-MM-DD")
}

// draft builds the issue draft. An unparseable due date is reported with the
// other field errors.
func (f *issueFlags) draft() (domain.IssueDraft, error) {
	d := domain.IssueDraft{Description: f.description, Severity: domain.Severity(f.severity)}
	if f.due == "" {
		return d, nil
	}
	due, err := domain.ParseDate(f.due)
	if err != nil {
		return d, domain.ValidationErrors{"due_date": "Due date must be a date in YYYY-MM-DD format"}
	}
	d.DueDate = &due
	return d, nil
}

func newRejectCmd(opts *rootOptions) *cobra.Command {
	var flags issueFlags
	cmd := &cobra.Command{
		Use:   "reject <form-id>",
		Short: "Reject a form and raise an issue",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, _ []string) error {
			d, err := flags.draft()
			if err != nil {
				return err
			}
			if err := s.SubmitStatus(cmd.Context(), review.LabelRejected, d); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printForm(out, s.View())
			return printIssues(out, s.View())
		}),
	}
	flags.register(cmd)
	return cmd
}

func newEditIssueCmd(opts *rootOptions) *cobra.Command {
	var flags issueFlags
	cmd := &cobra.Command{
		Use:   "edit-issue <form-id> <issue-id>",
		Short: "Edit an issue that has no corrective actions",
		Long:  "Edit an issue of the current revision. Flags left empty keep the issue's present value.",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, args []string) error {
			issueID, err := parseID("issue id", args[1])
			if err != nil {
				return err
			}
			issue, ok := s.View().Issue(issueID)
			if !ok {
				return fmt.Errorf("issue %d is not in the current revision", issueID)
			}
			if flags.description == "" {
				flags.description = issue.Description
			}
			if flags.severity == "" {
				flags.severity = string(issue.Severity)
			}
			if flags.due == "" {
				flags.due = issue.DueDate
			}

			d, err := flags.draft()
			if err != nil {
				return err
			}
			if err := s.BeginEdit(issueID); err != nil {
				return err
			}
			if err := s.SaveEdit(cmd.Context(), d); err != nil {
				return err
			}
			return printIssues(cmd.OutOrStdout(), s.View())
		}),
	}
	flags.register(cmd)
	return cmd
}

func newDeleteIssueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-issue <form-id> <issue-id>",
		Short: "Delete an issue that has no corrective actions",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(opts, false, func(cmd *cobra.Command, s *review.Session, args []string) error {
			issueID, err := parseID("issue id", args[1])
			if err != nil {
				return err
			}
			if err := s.ConfirmDelete(issueID); err != nil {
				return err
			}
			if err := s.Delete(cmd.Context()); err != nil {
				return err
			}
			return printIssues(cmd.OutOrStdout(), s.View())
		}),
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func printForm(out io.Writer, v review.View) {
	if v.Form == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "Form #%d  %s\n", v.Form.ID, v.Form.FormName)
	_, _ = fmt.Fprintf(out, "Status: %s  Revision: %d  Updated: %s\n\n",
		v.Form.Status, v.Form.Revision, v.Form.UpdatedAt.Format("2006-01-02 15:04"))
}

func printAnswers(out io.Writer, v review.View) {
	if len(v.CombinedForm) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUESTION\tANSWER")
	for _, item := range v.CombinedForm {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", item.Label, answerText(item.Value))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)
}

func answerText(v any) string {
	switch val := v.(type) {
	case nil:
		return "No response"
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		if val == "" {
			return "No response"
		}
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func printAnalysis(out io.Writer, v review.View) {
	switch v.Analysis {
	case review.AnalysisFailed:
		_, _ = fmt.Fprintf(out, "AI analysis: %s\n\n", v.AnalysisError)
		return
	case review.AnalysisDisplayed:
	default:
		_, _ = fmt.Fprintf(out, "AI analysis: %s\n\n", v.Analysis)
		return
	}

	r := v.AnalysisResult
	_, _ = fmt.Fprintf(out, "AI analysis: score %d (%s), risk %s\n", r.ComplianceScore, r.ScoreBand(), r.RiskLevel)
	for _, sec := range r.Sections() {
		_, _ = fmt.Fprintf(out, "  %s\n", sec.Title)
		for _, item := range sec.Items {
			_, _ = fmt.Fprintf(out, "    - %s\n", item)
		}
	}
	_, _ = fmt.Fprintln(out)
}

func printIssues(out io.Writer, v review.View) error {
	if len(v.Issues) == 0 {
		_, err := fmt.Fprintf(out, "No %s issues.\n", v.Version)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\tSEVERITY\tDUE\tACTIONS\tEDITABLE\tDESCRIPTION\n")
	for _, i := range v.Issues {
		editable := "no"
		if v.CanModify(i.ID) {
			editable = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", i.ID, i.Severity, i.DueDate, v.Counts[i.ID], editable, i.Description)
	}
	return w.Flush()
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}
