package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

func TestSyntheticIDRoundTrip(t *testing.T) {
	parent := uuid.New()
	id := SyntheticID(parent, 4)

	gotParent, gotIndex, ok := SplitSyntheticID(id)
	assert.True(t, ok)
	assert.Equal(t, parent, gotParent)
	assert.Equal(t, 4, gotIndex)
}

func TestSplitSyntheticIDRejectsAtomicIDs(t *testing.T) {
	_, _, ok := SplitSyntheticID(uuid.NewString())
	assert.False(t, ok)

	_, _, ok = SplitSyntheticID("not-a-uuid_3")
	assert.False(t, ok)

	_, _, ok = SplitSyntheticID(uuid.NewString() + "_x")
	assert.False(t, ok)
}

func TestFlattenExpandsComprehensiveRefs(t *testing.T) {
	atomicID := uuid.New()
	parentID := uuid.New()

	refs := []catalog.Ref{
		{ID: atomicID, Kind: catalog.RefQuestion},
		{ID: parentID, Kind: catalog.RefComprehensive},
	}
	resolved := map[uuid.UUID]catalog.Resolved{
		atomicID: {Question: &catalog.Question{ID: atomicID}},
		parentID: {Comprehensive: &catalog.ComprehensiveQuestion{
			ID:           parentID,
			SubQuestions: []catalog.Question{{}, {}, {}},
		}},
	}

	answers, err := Flatten(refs, resolved)
	assert.NoError(t, err)
	assert.Len(t, answers, 4)

	assert.Equal(t, atomicID.String(), answers[0].QuestionID)
	assert.Empty(t, answers[0].ParentID)
	for i := 1; i < 4; i++ {
		assert.Equal(t, SyntheticID(parentID, i-1), answers[i].QuestionID)
		assert.Equal(t, parentID.String(), answers[i].ParentID)
		assert.Nil(t, answers[i].Selected)
	}
}

func TestFlattenFailsOnUnresolvedRef(t *testing.T) {
	refs := []catalog.Ref{{ID: uuid.New(), Kind: catalog.RefQuestion}}
	_, err := Flatten(refs, map[uuid.UUID]catalog.Resolved{})
	assert.Error(t, err)
}

func TestGroupByParent(t *testing.T) {
	parentA := uuid.New()
	parentB := uuid.New()
	atomicID := uuid.NewString()

	sel := 1
	answers := []AttemptAnswer{
		{QuestionID: atomicID, Selected: &sel, TimeTakenSeconds: 5},
		{QuestionID: SyntheticID(parentA, 0), ParentID: parentA.String(), TimeTakenSeconds: 10},
		{QuestionID: SyntheticID(parentA, 1), ParentID: parentA.String(), TimeTakenSeconds: 20},
		{QuestionID: SyntheticID(parentB, 0), ParentID: parentB.String(), TimeTakenSeconds: 7},
	}

	atomic, groups := GroupByParent(answers)

	assert.Len(t, atomic, 1)
	assert.Equal(t, atomicID, atomic[0].QuestionID)

	assert.Len(t, groups, 2)
	assert.Len(t, groups[parentA].Answers, 2)
	assert.Equal(t, 30, groups[parentA].TimeTakenSeconds)
	assert.Equal(t, 7, groups[parentB].TimeTakenSeconds)
}

func TestGroupByParentMalformedSyntheticFallsBackToAtomic(t *testing.T) {
	answers := []AttemptAnswer{
		{QuestionID: "garbage", ParentID: uuid.NewString()},
	}
	atomic, groups := GroupByParent(answers)
	assert.Len(t, atomic, 1)
	assert.Empty(t, groups)
}
