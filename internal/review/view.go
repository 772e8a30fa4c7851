package review

import (
	"maps"
	"slices"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/domain"
)

// Phase is the load state of a session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode is what the reviewer is doing with the issue list.
type Mode int

const (
	ModeViewing Mode = iota
	ModeEditingIssue
	ModeConfirmingDelete
)

func (m Mode) String() string {
	switch m {
	case ModeViewing:
		return "viewing"
	case ModeEditingIssue:
		return "editing-issue"
	case ModeConfirmingDelete:
		return "confirming-delete"
	default:
		return "unknown"
	}
}

// AnalysisState tracks the AI analysis panel.
type AnalysisState int

const (
	AnalysisAbsent AnalysisState = iota
	AnalysisGenerating
	AnalysisDisplayed
	AnalysisFailed
)

func (a AnalysisState) String() string {
	switch a {
	case AnalysisAbsent:
		return "absent"
	case AnalysisGenerating:
		return "generating"
	case AnalysisDisplayed:
		return "displayed"
	case AnalysisFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IssueKey identifies an issue within one version. Issue ids are only unique
// per version as far as the cached views are concerned.
type IssueKey struct {
	Version domain.IssueVersion
	IssueID int64
}

// View is the whole state of one review session. Session.View returns a copy
// that is safe to read while the session keeps working.
type View struct {
	FormID int64
	Phase  Phase
	// LoadError is set in PhaseError.
	LoadError error

	Form         *FormSummary
	CombinedForm []domain.CombinedItem

	Version       domain.IssueVersion
	Issues        []Issue
	Counts        map[int64]int
	IssuesLoading bool

	LoadingActions map[IssueKey]bool
	Actions        map[IssueKey][]CorrectiveAction
	Expanded       map[IssueKey]bool

	Analysis       AnalysisState
	AnalysisResult *analysis.Result
	AnalysisError  string

	Submitting bool

	Mode Mode
	// Target is the issue being edited or confirmed for deletion.
	Target int64

	// APIError is the last failed request. It stays until DismissError.
	APIError    *RequestError
	FieldErrors domain.ValidationErrors
}

func newView(formID int64) View {
	return View{
		FormID:         formID,
		Phase:          PhaseLoading,
		Version:        domain.IssueVersionCurrent,
		Issues:         []Issue{},
		Counts:         map[int64]int{},
		LoadingActions: map[IssueKey]bool{},
		Actions:        map[IssueKey][]CorrectiveAction{},
		Expanded:       map[IssueKey]bool{},
	}
}

func (v View) clone() View {
	out := v
	if v.Form != nil {
		f := *v.Form
		f.AIAnalysis = slices.Clone(f.AIAnalysis)
		out.Form = &f
	}
	out.AnalysisResult = v.AnalysisResult.Clone()
	out.CombinedForm = slices.Clone(v.CombinedForm)
	out.Issues = slices.Clone(v.Issues)
	out.Counts = maps.Clone(v.Counts)
	out.LoadingActions = maps.Clone(v.LoadingActions)
	out.Expanded = maps.Clone(v.Expanded)
	out.Actions = make(map[IssueKey][]CorrectiveAction, len(v.Actions))
	for k, a := range v.Actions {
		out.Actions[k] = slices.Clone(a)
	}
	out.FieldErrors = maps.Clone(v.FieldErrors)
	return out
}

// Issue returns the listed issue with the given id.
func (v View) Issue(id int64) (Issue, bool) {
	for _, i := range v.Issues {
		if i.ID == id {
			return i, true
		}
	}
	return Issue{}, false
}

// IsExpanded reports whether the issue's corrective actions are shown in the
// selected version.
func (v View) IsExpanded(issueID int64) bool {
	return v.Expanded[IssueKey{Version: v.Version, IssueID: issueID}]
}

// CorrectiveActions returns the cached actions of an issue in the selected
// version.
func (v View) CorrectiveActions(issueID int64) ([]CorrectiveAction, bool) {
	a, ok := v.Actions[IssueKey{Version: v.Version, IssueID: issueID}]
	return a, ok
}

// CanModify reports whether an issue may be edited or deleted: it is listed in
// the current version and has no corrective actions.
func (v View) CanModify(issueID int64) bool {
	if v.Phase != PhaseReady || v.Version != domain.IssueVersionCurrent {
		return false
	}
	if _, ok := v.Issue(issueID); !ok {
		return false
	}
	return v.Counts[issueID] == 0
}
