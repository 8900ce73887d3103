package order

import (
	"fmt"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
)

// IssueKind classifies a verification finding.
type IssueKind string

const (
	IssuePlaceholder    IssueKind = "placeholder"
	IssueMissingSurface IssueKind = "missing-surface"
	IssueZMismatch      IssueKind = "z-mismatch"
	IssueDuplicateZ     IssueKind = "duplicate-z"
)

// Issue is one disagreement between the derived order and what is painted.
type Issue struct {
	Kind     IssueKind
	ID       string
	Expected int
	// Actual is the index read off the surface; -1 when the surface has none.
	Actual int
	// Other names the entry a duplicate index collides with.
	Other string
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueZMismatch:
		return fmt.Sprintf("%s %s: want z=%d, got %d", i.Kind, i.ID, i.Expected, i.Actual)
	case IssueDuplicateZ:
		return fmt.Sprintf("%s %s: z=%d shared with %s", i.Kind, i.ID, i.Actual, i.Other)
	default:
		return fmt.Sprintf("%s %s", i.Kind, i.ID)
	}
}

// Report is the outcome of one verification pass.
type Report struct {
	Issues  []Issue
	Checked int
}

// OK reports whether the pass found nothing.
func (r Report) OK() bool { return len(r.Issues) == 0 }

// Count returns the number of issues of one kind.
func (r Report) Count(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// maxLoggedIssues bounds how many findings of a rebuild pass reach the log.
const maxLoggedIssues = 5

// Verifier compares the paint index actually applied to each surface with
// the index the snapshot derives.
type Verifier struct {
	surfaces Surfaces
	logger   Logger
	recorder Recorder
	request  func(trigger string)
}

// NewVerifier builds a verifier. request is called once for every failing
// pass that is allowed to ask for a rebuild.
func NewVerifier(ctx Context, request func(trigger string)) *Verifier {
	ctx = ctx.withDefaults()
	if request == nil {
		request = func(string) {}
	}
	return &Verifier{surfaces: ctx.Surfaces, logger: ctx.Logger, recorder: ctx.Recorder, request: request}
}

// Verify checks every entry. It reads only.
func (v *Verifier) Verify(s Snapshot) Report {
	report := Report{Checked: len(s)}
	owners := make(map[int]string, len(s))
	for _, entry := range s {
		if entry.Placeholder() {
			report.Issues = append(report.Issues, Issue{Kind: IssuePlaceholder, ID: entry.ID, Expected: entry.ZIndex, Actual: -1})
			continue
		}
		node, ok := v.paintedSurface(entry)
		if !ok {
			report.Issues = append(report.Issues, Issue{Kind: IssueMissingSurface, ID: entry.ID, Expected: entry.ZIndex, Actual: -1})
			continue
		}
		actual, set := node.ZIndex()
		if !set {
			actual = -1
		}
		if actual != entry.ZIndex {
			report.Issues = append(report.Issues, Issue{Kind: IssueZMismatch, ID: entry.ID, Expected: entry.ZIndex, Actual: actual})
		}
		if !set {
			continue
		}
		if other, dup := owners[actual]; dup {
			report.Issues = append(report.Issues, Issue{Kind: IssueDuplicateZ, ID: entry.ID, Expected: entry.ZIndex, Actual: actual, Other: other})
			continue
		}
		owners[actual] = entry.ID
	}
	v.recorder.ObserveVerification(len(report.Issues))
	return report
}

// VerifyAndRecover verifies a normal pass and asks for one rebuild when it
// finds anything.
func (v *Verifier) VerifyAndRecover(s Snapshot) Report {
	report := v.Verify(s)
	if !report.OK() {
		v.logger.Warn("verification found %d issue(s); requesting rebuild", len(report.Issues))
		v.request("verify")
	}
	return report
}

// LogRebuildReport writes the findings of a rebuild pass. Rebuild passes
// never request another rebuild.
func (v *Verifier) LogRebuildReport(report Report) {
	if report.OK() {
		return
	}
	v.logger.Error("order still inconsistent after rebuild: %d issue(s)", len(report.Issues))
	for i, issue := range report.Issues {
		if i == maxLoggedIssues {
			v.logger.Error("... %d more", len(report.Issues)-maxLoggedIssues)
			break
		}
		v.logger.Error("  %s", issue)
	}
}

// paintedSurface returns the node whose index decides where the entry
// paints. An annotation element reclaimed by the canvas paints at the
// canvas' index, not its proxy's.
func (v *Verifier) paintedSurface(entry Entry) (*surface.Node, bool) {
	switch entry.Kind {
	case layer.KindImage:
		return v.surfaces.ImageSurface(entry.ID)
	case layer.KindAnnotation:
		element, ok := v.surfaces.Element(entry.ID)
		if !ok || element.Parent() == nil {
			return nil, false
		}
		return element.Parent(), true
	}
	return nil, false
}
