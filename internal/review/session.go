package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/domain"
)

// Status labels accepted by SubmitStatus.
const (
	LabelApproved = "Approved"
	LabelRejected = "Rejected"
)

// AnalysisFormatError is shown when a stored analysis cannot be parsed.
const AnalysisFormatError = "Could not display saved analysis. Data format error."

var (
	// ErrUnknownStatus is returned for a status label that is not a review
	// decision.
	ErrUnknownStatus = errors.New("review: unknown status label")
	// ErrNotReady is returned when the form details have not been loaded.
	ErrNotReady = errors.New("review: session is not ready")
	// ErrWrongMode is returned when an edit or delete step is out of order.
	ErrWrongMode = errors.New("review: operation not valid in the current mode")
	// ErrAnalysisFailed wraps an unsuccessful analysis generation.
	ErrAnalysisFailed = errors.New("review: analysis generation failed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("review: session closed")
)

// StatusIDForLabel maps a reviewer's status label to the status id the API
// expects. Labels are matched case-insensitively.
func StatusIDForLabel(label string) (int64, error) {
	switch {
	case strings.EqualFold(label, LabelApproved):
		return domain.StatusIDApproved, nil
	case strings.EqualFold(label, LabelRejected):
		return domain.StatusIDRejected, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, label)
	}
}

// Session holds the review state of one form. Every request runs under a
// session context that Close cancels. Nothing is retried automatically.
type Session struct {
	client *Client
	clock  func() time.Time
	notify func(View)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	view          View
	closed        bool
	autoAnalysis  bool
	autoGenerated bool
}

type SessionOption func(*Session)

func WithClock(clock func() time.Time) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// WithAutoAnalysis controls whether Load starts generating a missing
// analysis. It is on by default.
func WithAutoAnalysis(enabled bool) SessionOption {
	return func(s *Session) { s.autoAnalysis = enabled }
}

// WithOnChange registers fn to receive a copy of the view after every state
// change. fn runs with no session lock held.
func WithOnChange(fn func(View)) SessionOption {
	return func(s *Session) { s.notify = fn }
}

func NewSession(client *Client, formID int64, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		client:       client,
		clock:        time.Now,
		ctx:          ctx,
		cancel:       cancel,
		view:         newView(formID),
		autoAnalysis: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Close cancels outstanding requests, including a background analysis
// generation, and waits for them to return. Later state changes are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Wait blocks until background work started by the session has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// update applies fn to the view unless the session is closed.
func (s *Session) update(fn func(v *View)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(&s.view)
	snapshot := s.view.clone()
	s.mu.Unlock()

	if s.notify != nil {
		s.notify(snapshot)
	}
}

// bind derives a request context cancelled by either ctx or Close.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// asRequestError returns err as a *RequestError, wrapping foreign errors as
// client-side failures.
func asRequestError(op string, err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Op: op, Kind: KindClient, Err: err}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load fetches the form details and then the issues of the selected version.
// A detail failure moves the session to PhaseError. A stored analysis that
// cannot be parsed fails only the analysis panel. Without a stored analysis,
// generation starts in the background, once per session.
func (s *Session) Load(ctx context.Context) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.update(func(v *View) {
		v.Phase = PhaseLoading
		v.LoadError = nil
	})

	formID := s.View().FormID
	details, err := s.client.FormDetails(ctx, formID)
	if err != nil {
		s.update(func(v *View) {
			v.Phase = PhaseError
			v.LoadError = err
		})
		return fmt.Errorf("review.Session.Load: %w", err)
	}

	startGeneration := false
	result, parseErr := analysis.Parse(details.Form.AIAnalysis)
	s.update(func(v *View) {
		form := details.Form
		v.Form = &form
		v.CombinedForm = details.CombinedForm

		switch {
		case parseErr != nil:
			log.Warn().Err(parseErr).Int64("form_id", formID).Msg("stored analysis is unreadable")
			v.Analysis = AnalysisFailed
			v.AnalysisResult = nil
			v.AnalysisError = AnalysisFormatError
		case result != nil:
			v.Analysis = AnalysisDisplayed
			v.AnalysisResult = result
			v.AnalysisError = ""
		case v.Analysis == AnalysisAbsent && s.autoAnalysis && !s.autoGenerated:
			// Added under mu so a concurrent Close, which sets closed first,
			// never waits while the counter grows.
			s.autoGenerated = true
			startGeneration = true
			s.wg.Add(1)
		}
	})

	if startGeneration {
		go func() {
			defer s.wg.Done()
			if err := s.GenerateAnalysis(s.ctx); err != nil && s.ctx.Err() == nil {
				log.Warn().Err(err).Int64("form_id", formID).Msg("automatic analysis generation failed")
			}
		}()
	}

	// Issue failures surface in APIError; the form itself is usable.
	version := s.View().Version
	_ = s.listIssues(ctx, version)

	s.update(func(v *View) { v.Phase = PhaseReady })
	return nil
}

// Retry re-enters loading after a detail failure. It does nothing in any
// other phase.
func (s *Session) Retry(ctx context.Context) error {
	if s.View().Phase != PhaseError {
		return nil
	}
	return s.Load(ctx)
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// GenerateAnalysis requests the AI analysis. It is a no-op while a generation
// is in flight or once an analysis is displayed; a failed generation may be
// retried by calling it again.
func (s *Session) GenerateAnalysis(ctx context.Context) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	var (
		formID int64
		start  bool
	)
	s.update(func(v *View) {
		if v.Analysis == AnalysisGenerating || v.Analysis == AnalysisDisplayed {
			return
		}
		v.Analysis = AnalysisGenerating
		v.AnalysisError = ""
		formID, start = v.FormID, true
	})
	if !start {
		return nil
	}

	resp, err := s.client.GenerateAnalysis(ctx, formID)
	if err != nil {
		re := asRequestError("Session.GenerateAnalysis", err)
		msg := re.Message
		if msg == "" {
			msg = re.Summary()
		}
		s.update(func(v *View) {
			v.Analysis = AnalysisFailed
			v.AnalysisError = msg
		})
		return fmt.Errorf("review.Session.GenerateAnalysis: %w", err)
	}

	if !resp.Success || resp.Analysis == nil {
		msg := resp.Error
		if msg == "" {
			msg = "Failed to generate analysis"
		}
		s.update(func(v *View) {
			v.Analysis = AnalysisFailed
			v.AnalysisError = msg
		})
		return fmt.Errorf("review.Session.GenerateAnalysis: %w: %s", ErrAnalysisFailed, msg)
	}

	s.update(func(v *View) {
		v.Analysis = AnalysisDisplayed
		v.AnalysisResult = resp.Analysis
	})
	return nil
}

// ---------------------------------------------------------------------------
// Issues and corrective actions
// ---------------------------------------------------------------------------

// SetVersion selects the current or previous issue set and fetches it.
func (s *Session) SetVersion(ctx context.Context, version domain.IssueVersion) error {
	if !version.Valid() {
		return fmt.Errorf("review.Session.SetVersion: unknown version %q", version)
	}
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.update(func(v *View) {
		v.Version = version
		v.Mode = ModeViewing
		v.Target = 0
	})
	return s.listIssues(ctx, version)
}

// listIssues fetches the issues of version and, when there are any, their
// corrective action counts in one batch. The result replaces the listed
// issues; it is dropped if the selected version changed meanwhile.
func (s *Session) listIssues(ctx context.Context, version domain.IssueVersion) error {
	formID := s.View().FormID
	s.update(func(v *View) { v.IssuesLoading = true })

	issues, err := s.client.ListIssues(ctx, formID, version)
	if err != nil {
		s.update(func(v *View) {
			v.IssuesLoading = false
			v.APIError = asRequestError("Session.listIssues", err)
		})
		return fmt.Errorf("review.Session.listIssues: %w", err)
	}

	counts := map[int64]int{}
	if len(issues) > 0 {
		ids := make([]int64, 0, len(issues))
		for _, i := range issues {
			ids = append(ids, i.ID)
		}
		counts, err = s.client.CountCorrectiveActions(ctx, ids)
		if err != nil {
			s.update(func(v *View) {
				v.IssuesLoading = false
				v.APIError = asRequestError("Session.listIssues", err)
			})
			return fmt.Errorf("review.Session.listIssues: %w", err)
		}
	}

	s.update(func(v *View) {
		v.IssuesLoading = false
		if v.Version != version {
			return
		}
		v.Issues = issues
		v.Counts = counts
	})
	return nil
}

// refresh re-reads the selected issue list. Every mutation ends with it.
func (s *Session) refresh(ctx context.Context) error {
	return s.listIssues(ctx, s.View().Version)
}

// ToggleCorrectiveActions expands or collapses an issue's corrective actions.
// The list is fetched on first expansion and cached per version.
func (s *Session) ToggleCorrectiveActions(ctx context.Context, issueID int64) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	var key IssueKey
	fetch := false
	s.update(func(v *View) {
		key = IssueKey{Version: v.Version, IssueID: issueID}
		v.Expanded[key] = !v.Expanded[key]
		if _, cached := v.Actions[key]; v.Expanded[key] && !cached && !v.LoadingActions[key] {
			v.LoadingActions[key] = true
			fetch = true
		}
	})
	if !fetch {
		return nil
	}

	actions, err := s.client.ListCorrectiveActions(ctx, issueID)
	s.update(func(v *View) {
		delete(v.LoadingActions, key)
		if err != nil {
			v.APIError = asRequestError("Session.ToggleCorrectiveActions", err)
			return
		}
		v.Actions[key] = actions
	})
	if err != nil {
		return fmt.Errorf("review.Session.ToggleCorrectiveActions: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Review decision
// ---------------------------------------------------------------------------

// SubmitStatus approves or rejects the form. A rejection carries draft as the
// new issue; the draft is validated before anything is sent and every failing
// field is reported at once. On success the whole view is reloaded.
func (s *Session) SubmitStatus(ctx context.Context, label string, draft domain.IssueDraft) error {
	statusID, err := StatusIDForLabel(label)
	if err != nil {
		return err
	}

	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	if s.View().Phase != PhaseReady {
		return ErrNotReady
	}

	req := StatusUpdate{StatusID: statusID}
	if statusID == domain.StatusIDRejected {
		if verr := draft.Validate(s.clock()); verr != nil {
			var fields domain.ValidationErrors
			errors.As(verr, &fields)
			s.update(func(v *View) { v.FieldErrors = fields })
			return verr
		}
		req.IssueDescription = draft.Description
		req.IssueSeverity = string(draft.Severity)
		req.IssueDueDate = draft.DueDate.Format(domain.DateLayout)
	}

	s.update(func(v *View) {
		v.Submitting = true
		v.FieldErrors = nil
	})

	formID := s.View().FormID
	if err := s.client.UpdateStatus(ctx, formID, req); err != nil {
		re := asRequestError("Session.SubmitStatus", err)
		s.update(func(v *View) {
			v.Submitting = false
			v.APIError = re
			v.FieldErrors = re.FieldErrors()
		})
		return fmt.Errorf("review.Session.SubmitStatus: %w", err)
	}

	s.update(func(v *View) {
		v.Submitting = false
		v.Mode = ModeViewing
		v.Target = 0
		clear(v.Actions)
		clear(v.Expanded)
	})
	return s.Load(ctx)
}

// ---------------------------------------------------------------------------
// Edit and delete
// ---------------------------------------------------------------------------

// guardModify checks that issueID may be mutated and switches to mode.
func (s *Session) guardModify(issueID int64, mode Mode) error {
	var err error
	s.update(func(v *View) {
		if v.Phase != PhaseReady {
			err = ErrNotReady
			return
		}
		if !v.CanModify(issueID) {
			err = domain.ErrIssueLocked
			return
		}
		v.Mode = mode
		v.Target = issueID
		v.FieldErrors = nil
	})
	return err
}

// BeginEdit opens an issue for editing. Only issues of the current version
// without corrective actions can be edited.
func (s *Session) BeginEdit(issueID int64) error {
	if err := s.guardModify(issueID, ModeEditingIssue); err != nil {
		return fmt.Errorf("review.Session.BeginEdit: %w", err)
	}
	return nil
}

func (s *Session) CancelEdit() {
	s.update(func(v *View) {
		if v.Mode == ModeEditingIssue {
			v.Mode = ModeViewing
			v.Target = 0
			v.FieldErrors = nil
		}
	})
}

// SaveEdit validates and saves the issue being edited, then refreshes the
// issue list. On failure the issue stays open for editing.
func (s *Session) SaveEdit(ctx context.Context, draft domain.IssueDraft) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	cur := s.View()
	if cur.Mode != ModeEditingIssue {
		return ErrWrongMode
	}

	verr := draft.Validate(s.clock())
	if issue, ok := cur.Issue(cur.Target); ok {
		if due, err := domain.ParseDate(issue.DueDate); err == nil {
			verr = draft.ValidateEdit(s.clock(), due)
		}
	}
	if verr != nil {
		var fields domain.ValidationErrors
		errors.As(verr, &fields)
		s.update(func(v *View) { v.FieldErrors = fields })
		return verr
	}

	s.update(func(v *View) { v.Submitting = true })
	if err := s.client.UpdateIssue(ctx, cur.Target, draft); err != nil {
		re := asRequestError("Session.SaveEdit", err)
		s.update(func(v *View) {
			v.Submitting = false
			v.APIError = re
			v.FieldErrors = re.FieldErrors()
		})
		return fmt.Errorf("review.Session.SaveEdit: %w", err)
	}

	s.update(func(v *View) {
		v.Submitting = false
		v.Mode = ModeViewing
		v.Target = 0
		v.FieldErrors = nil
	})
	return s.refresh(ctx)
}

// ConfirmDelete asks for confirmation before deleting an issue.
func (s *Session) ConfirmDelete(issueID int64) error {
	if err := s.guardModify(issueID, ModeConfirmingDelete); err != nil {
		return fmt.Errorf("review.Session.ConfirmDelete: %w", err)
	}
	return nil
}

func (s *Session) CancelDelete() {
	s.update(func(v *View) {
		if v.Mode == ModeConfirmingDelete {
			v.Mode = ModeViewing
			v.Target = 0
		}
	})
}

// Delete removes the issue awaiting confirmation, then refreshes the issue
// list.
func (s *Session) Delete(ctx context.Context) error {
	ctx, done, err := s.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	cur := s.View()
	if cur.Mode != ModeConfirmingDelete {
		return ErrWrongMode
	}

	s.update(func(v *View) { v.Submitting = true })
	if err := s.client.DeleteIssue(ctx, cur.Target); err != nil {
		s.update(func(v *View) {
			v.Submitting = false
			v.APIError = asRequestError("Session.Delete", err)
		})
		return fmt.Errorf("review.Session.Delete: %w", err)
	}

	s.update(func(v *View) {
		v.Submitting = false
		v.Mode = ModeViewing
		v.Target = 0
		for k := range v.Actions {
			if k.Version == domain.IssueVersionCurrent && k.IssueID == cur.Target {
				delete(v.Actions, k)
				delete(v.Expanded, k)
			}
		}
	})
	return s.refresh(ctx)
}

// DismissError clears the last request error and field errors. Errors are
// never cleared any other way.
func (s *Session) DismissError() {
	s.update(func(v *View) {
		v.APIError = nil
		v.FieldErrors = nil
	})
}
