package catalog

import (
	"github.com/google/uuid"
)

// RefKind discriminates the two question shapes a test can reference.
type RefKind string

const (
	RefQuestion      RefKind = "question"
	RefComprehensive RefKind = "comprehensive"
)

// Ref is the only thing persisted on a test: an ordered pointer into the
// catalog. The full body is resolved lazily.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Kind RefKind   `json:"kind"`
}

// Question is an atomic multiple-choice question. AnswerIndex is the
// canonical correct-answer representation; raw stored answers (option text
// or index) are normalized once at scan time.
type Question struct {
	ID          uuid.UUID `json:"id"`
	Prompt      string    `json:"prompt"`
	Options     []string  `json:"options"`
	AnswerIndex int       `json:"answer_index"`
	Explanation string    `json:"explanation,omitempty"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	ParentID    uuid.UUID `json:"parent_id,omitempty"`
}

// ComprehensiveQuestion bundles several sub-questions under one passage.
// It is never answered as a unit; sessions flatten it into independently
// timed sub-answers.
type ComprehensiveQuestion struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	SubCategory  string     `json:"sub_category,omitempty"`
	SubQuestions []Question `json:"sub_questions"`
}

// Resolved is a ref joined with its body. Exactly one of Question or
// Comprehensive is non-nil, matching Ref.Kind.
type Resolved struct {
	Ref           Ref
	Question      *Question
	Comprehensive *ComprehensiveQuestion
}
