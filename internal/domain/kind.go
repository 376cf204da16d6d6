package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the closed set of tracked work item types.
type Kind string

// Kind values, spelled the way the issue tracker exports them.
const (
	KindUseCase      Kind = "U-C"
	KindUserStory    Kind = "U-S"
	KindBug          Kind = "BUG"
	KindEvolution    Kind = "EVO"
	KindQualityIssue Kind = "QA"
	KindRequirement  Kind = "RQT"
)

var validKinds = []Kind{KindUseCase, KindUserStory, KindBug, KindEvolution, KindQualityIssue, KindRequirement}

// ParseKind canonicalizes a raw kind value.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if !slices.Contains(validKinds, kind) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
	return kind, nil
}

// IsStoryLike reports whether the kind counts as planned feature work.
func (k Kind) IsStoryLike() bool {
	return k == KindUserStory || k == KindEvolution
}

// IsDefectLike reports whether the kind counts as defect work.
func (k Kind) IsDefectLike() bool {
	return k == KindBug || k == KindQualityIssue
}

// Status is the categorical state of a work item.
type Status string

// Journal states. StatusUnknown and StatusUnplanned are lookup results only.
const (
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusUnknown    Status = "unknown"
	StatusUnplanned  Status = "unplanned"
)

var journalStatuses = []Status{StatusNew, StatusInProgress, StatusDone}

// ParseStatus canonicalizes a raw journal status; lookup-only values are rejected.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new":
		return StatusNew, nil
	case "in progress", "in-progress", "progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Letter returns the progress bar glyph for the status.
func (s Status) Letter() byte {
	switch s {
	case StatusNew:
		return 'N'
	case StatusInProgress:
		return 'I'
	case StatusDone:
		return 'D'
	default:
		return '.'
	}
}

// Complexity is the t-shirt size estimate of a work item.
type Complexity string

// Complexity values.
const (
	ComplexityS   Complexity = "S"
	ComplexityM   Complexity = "M"
	ComplexityL   Complexity = "L"
	ComplexityXL  Complexity = "XL"
	ComplexityXXL Complexity = "XXL"
)

var validComplexities = []Complexity{ComplexityS, ComplexityM, ComplexityL, ComplexityXL, ComplexityXXL}

// ParseComplexity canonicalizes a complexity; empty means not estimated.
func ParseComplexity(raw string) (Complexity, error) {
	c := Complexity(strings.ToUpper(strings.TrimSpace(raw)))
	if c == "" {
		return "", nil
	}
	if !slices.Contains(validComplexities, c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidComplexity, raw)
	}
	return c, nil
}
