package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/auditdesk/internal/domain"
	"github.com/gosuda/auditdesk/internal/notify"
)

// --- mock SlackAPI ---

type mockSlackAPI struct {
	channel string
	opts    []slacklib.MsgOption
	err     error
	calls   int
}

func (m *mockSlackAPI) PostMessageContext(_ context.Context, channelID string, options ...slacklib.MsgOption) (ch, ts string, err error) {
	m.calls++
	m.channel = channelID
	m.opts = options
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1700000000.000100", nil
}

func testForm() *domain.AuditForm {
	return &domain.AuditForm{ID: 3, Name: "Kitchen hygiene", OutletName: "Bangsar"}
}

func testIssue() *domain.Issue {
	return &domain.Issue{
		Description: "Fridge above 5C",
		Severity:    domain.SeverityHigh,
		DueDate:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- SlackNotifier ---

func TestSlackNotifier_FormRejected(t *testing.T) {
	t.Parallel()

	t.Run("posts to configured channel", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{}
		n := notify.NewSlackNotifier(api, "C-AUDIT")

		err := n.FormRejected(t.Context(), testForm(), testIssue())

		require.NoError(t, err)
		assert.Equal(t, 1, api.calls)
		assert.Equal(t, "C-AUDIT", api.channel)
		assert.Len(t, api.opts, 2)
	})

	t.Run("wraps API error", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{err: errors.New("channel_not_found")}
		n := notify.NewSlackNotifier(api, "C-AUDIT")

		err := n.FormRejected(t.Context(), testForm(), testIssue())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel_not_found")
	})
}

func TestSlackNotifier_FormApproved(t *testing.T) {
	t.Parallel()

	api := &mockSlackAPI{}
	err := notify.NewSlackNotifier(api, "C1").FormApproved(t.Context(), testForm())

	require.NoError(t, err)
	assert.Equal(t, "C1", api.channel)
}

// --- Blocks ---

func TestBuildRejectionBlocks(t *testing.T) {
	t.Parallel()

	blocks := notify.BuildRejectionBlocks(testForm(), testIssue())
	require.Len(t, blocks, 3)

	header, ok := blocks[0].(*slacklib.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, header.Text.Text, "Kitchen hygiene")
	assert.Contains(t, header.Text.Text, "Bangsar")

	_, ok = blocks[1].(*slacklib.DividerBlock)
	assert.True(t, ok)

	detail, ok := blocks[2].(*slacklib.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, detail.Text.Text, "High")
	assert.Contains(t, detail.Text.Text, "2025-07-01")

	assert.Len(t, notify.BuildRejectionBlocks(testForm(), nil), 1)
}

func TestBuildApprovalBlocks(t *testing.T) {
	t.Parallel()

	blocks := notify.BuildApprovalBlocks(&domain.AuditForm{Name: "Bar"})
	require.Len(t, blocks, 1)

	section, ok := blocks[0].(*slacklib.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, "approved")
	assert.NotContains(t, section.Text.Text, "Outlet")
}

func TestNop(t *testing.T) {
	t.Parallel()

	var n notify.Notifier = notify.Nop{}
	assert.NoError(t, n.FormApproved(context.Background(), testForm()))
	assert.NoError(t, n.FormRejected(context.Background(), testForm(), nil))
}
