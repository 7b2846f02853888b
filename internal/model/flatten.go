package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

// SyntheticID builds the session-local id of a comprehensive sub-answer.
// The convention (parentID_index) is an implementation detail; callers
// regroup through GroupByParent rather than parsing ids themselves.
func SyntheticID(parentID uuid.UUID, index int) string {
	return parentID.String() + "_" + strconv.Itoa(index)
}

// SplitSyntheticID reverses SyntheticID. ok is false for plain atomic ids.
func SplitSyntheticID(id string) (parentID uuid.UUID, index int, ok bool) {
	pos := strings.LastIndexByte(id, '_')
	if pos < 0 {
		return uuid.Nil, 0, false
	}
	parent, err := uuid.Parse(id[:pos])
	if err != nil {
		return uuid.Nil, 0, false
	}
	idx, err := strconv.Atoi(id[pos+1:])
	if err != nil || idx < 0 {
		return uuid.Nil, 0, false
	}
	return parent, idx, true
}

// Flatten expands a test's ordered refs into the flat answer arena a
// session mutates: one slot per atomic question, one per comprehensive
// sub-question, all initialized to not-attempted.
func Flatten(refs []catalog.Ref, resolved map[uuid.UUID]catalog.Resolved) ([]AttemptAnswer, error) {
	var answers []AttemptAnswer
	for _, ref := range refs {
		body, ok := resolved[ref.ID]
		if !ok {
			return nil, fmt.Errorf("flatten: unresolved ref %s", ref.ID)
		}
		switch {
		case body.Question != nil:
			answers = append(answers, AttemptAnswer{QuestionID: ref.ID.String()})
		case body.Comprehensive != nil:
			for i := range body.Comprehensive.SubQuestions {
				answers = append(answers, AttemptAnswer{
					QuestionID: SyntheticID(ref.ID, i),
					ParentID:   ref.ID.String(),
				})
			}
		default:
			return nil, fmt.Errorf("flatten: ref %s has no body", ref.ID)
		}
	}
	return answers, nil
}

// ParentGroup is one comprehensive question's reassembled answer set with
// summed time.
type ParentGroup struct {
	ParentID         uuid.UUID
	Answers          []AttemptAnswer
	TimeTakenSeconds int
}

// GroupByParent reassembles flattened sub-answers per comprehensive
// question, preserving sub-question order. Atomic answers pass through in
// the returned flat slice untouched.
func GroupByParent(answers []AttemptAnswer) (atomic []AttemptAnswer, groups map[uuid.UUID]*ParentGroup) {
	groups = make(map[uuid.UUID]*ParentGroup)
	for _, a := range answers {
		if a.ParentID == "" {
			atomic = append(atomic, a)
			continue
		}
		parentID, _, ok := SplitSyntheticID(a.QuestionID)
		if !ok {
			// Malformed synthetic id: treat as atomic so it is still
			// scored (as not-attempted if unresolvable).
			atomic = append(atomic, a)
			continue
		}
		g, exists := groups[parentID]
		if !exists {
			g = &ParentGroup{ParentID: parentID}
			groups[parentID] = g
		}
		g.Answers = append(g.Answers, a)
		g.TimeTakenSeconds += a.TimeTakenSeconds
	}
	return atomic, groups
}
