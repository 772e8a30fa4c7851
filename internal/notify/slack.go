package notify

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/auditdesk/internal/domain"
)

// SlackAPI abstracts the subset of the Slack client used by SlackNotifier.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts review decisions to a fixed channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(api SlackAPI, channel string) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel}
}

// NewSlack builds a notifier backed by the Slack web API.
func NewSlack(botToken, channel string) *SlackNotifier {
	return NewSlackNotifier(slacklib.New(botToken), channel)
}

func (n *SlackNotifier) FormRejected(ctx context.Context, form *domain.AuditForm, issue *domain.Issue) error {
	text := fmt.Sprintf("Form %q was rejected", form.Name)
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slacklib.MsgOptionText(text, false),
		slacklib.MsgOptionBlocks(BuildRejectionBlocks(form, issue)...),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackNotifier.FormRejected: %w", err)
	}
	return nil
}

func (n *SlackNotifier) FormApproved(ctx context.Context, form *domain.AuditForm) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slacklib.MsgOptionText(fmt.Sprintf("Form %q was approved", form.Name), false),
		slacklib.MsgOptionBlocks(BuildApprovalBlocks(form)...),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackNotifier.FormApproved: %w", err)
	}
	return nil
}

// BuildRejectionBlocks renders the form header followed by the raised issue.
func BuildRejectionBlocks(form *domain.AuditForm, issue *domain.Issue) []slacklib.Block {
	header := fmt.Sprintf("*Form:* %s\n*Status:* `%s`", form.Name, domain.StatusRejected)
	if form.OutletName != "" {
		header += fmt.Sprintf("\n*Outlet:* %s", form.OutletName)
	}

	blocks := []slacklib.Block{markdownSection(header)}
	if issue == nil {
		return blocks
	}

	detail := fmt.Sprintf("*Issue (%s):* %s\n*Due:* %s",
		issue.Severity, issue.Description, issue.DueDate.Format(domain.DateLayout))
	return append(blocks, slacklib.NewDividerBlock(), markdownSection(detail))
}

func BuildApprovalBlocks(form *domain.AuditForm) []slacklib.Block {
	text := fmt.Sprintf("*Form:* %s\n*Status:* `%s`", form.Name, domain.StatusApproved)
	if form.OutletName != "" {
		text += fmt.Sprintf("\n*Outlet:* %s", form.OutletName)
	}
	return []slacklib.Block{markdownSection(text)}
}

func markdownSection(text string) *slacklib.SectionBlock {
	return slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)
}
