package evaluate

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/model"
)

// Config holds the marking scheme. Defaults mirror the platform's
// standard scheme: +4 per correct answer, -1 per wrong one, nothing for
// an unattempted question.
type Config struct {
	PointsCorrect int
	PenaltyWrong  int
}

// DefaultConfig returns production marking defaults.
func DefaultConfig() Config {
	return Config{PointsCorrect: 4, PenaltyWrong: 1}
}

// Evaluator turns a locked answer set into scores. Evaluation is a pure
// function of (refs, resolved bodies, answers): no clock reads, no stored
// state, same result every run.
type Evaluator struct {
	cfg Config
}

func New(cfg Config) *Evaluator {
	if cfg.PointsCorrect == 0 {
		cfg = DefaultConfig()
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate scores one locked attempt. submittedAt is stamped by the
// caller so the function itself stays clock-free. A ref that cannot be
// resolved from the catalog scores as not-attempted; it never fails the
// whole result.
func (e *Evaluator) Evaluate(
	rec model.SessionRecord,
	refs []catalog.Ref,
	resolved map[uuid.UUID]catalog.Resolved,
	submittedAt time.Time,
) model.EvaluatedResult {
	result := model.EvaluatedResult{
		AttemptID:      rec.AttemptID,
		TestID:         rec.TestID,
		UserID:         rec.UserID,
		Categories:     map[string]model.CategoryScore{},
		TabSwitchCount: rec.TabSwitchCount,
		SubmittedAt:    submittedAt,
	}

	atomicAnswers, groups := model.GroupByParent(rec.Answers)
	byID := make(map[string]model.AttemptAnswer, len(atomicAnswers))
	for _, a := range atomicAnswers {
		byID[a.QuestionID] = a
	}

	rawScore := 0
	for _, ref := range refs {
		body, ok := resolved[ref.ID]
		switch {
		case ok && body.Question != nil:
			outcome, delta := e.scoreOne(byID[ref.ID.String()], body.Question)
			rawScore += delta
			accumulate(&result, outcome, delta)

		case ok && body.Comprehensive != nil:
			// Sub-questions carry their own category, not the parent's.
			group := groups[ref.ID]
			for i := range body.Comprehensive.SubQuestions {
				sub := &body.Comprehensive.SubQuestions[i]
				syntheticID := model.SyntheticID(ref.ID, i)
				answer := model.AttemptAnswer{QuestionID: syntheticID, ParentID: ref.ID.String()}
				if group != nil {
					for _, a := range group.Answers {
						if a.QuestionID == syntheticID {
							answer = a
							break
						}
					}
				}
				outcome, delta := e.scoreOne(answer, sub)
				rawScore += delta
				accumulate(&result, outcome, delta)
			}

		default:
			// Unresolvable ref: score that one question as not attempted
			// and keep going with the rest of the attempt.
			accumulate(&result, model.QuestionOutcome{
				QuestionID: ref.ID.String(),
				Category:   "unknown",
			}, 0)
		}
	}

	for _, o := range result.Outcomes {
		if o.Correct {
			result.TotalCorrect++
		}
	}
	// Malformed or heavily penalized attempts clamp to zero, never go
	// negative. Category scores clamp once, after all outcomes are in, so
	// the per-category total does not depend on question order.
	if rawScore < 0 {
		rawScore = 0
	}
	result.TotalScore = rawScore
	for cat, cs := range result.Categories {
		if cs.Score < 0 {
			cs.Score = 0
			result.Categories[cat] = cs
		}
	}
	return result
}

// scoreOne marks a single slot against its question body.
// A nil selection is always incorrect and counts as not attempted.
func (e *Evaluator) scoreOne(answer model.AttemptAnswer, q *catalog.Question) (model.QuestionOutcome, int) {
	outcome := model.QuestionOutcome{
		QuestionID: answer.QuestionID,
		ParentID:   answer.ParentID,
		Category:   q.Category,
		TimeSpent:  answer.TimeTakenSeconds,
	}
	if answer.Selected == nil {
		return outcome, 0
	}
	outcome.Attempted = true
	if *answer.Selected == q.AnswerIndex {
		outcome.Correct = true
		return outcome, e.cfg.PointsCorrect
	}
	return outcome, -e.cfg.PenaltyWrong
}

func accumulate(result *model.EvaluatedResult, outcome model.QuestionOutcome, points int) {
	result.Outcomes = append(result.Outcomes, outcome)

	cs := result.Categories[outcome.Category]
	cs.TotalQuestions++
	cs.TimeSpentSec += outcome.TimeSpent
	if outcome.Attempted {
		cs.Attempted++
	}
	cs.Score += points
	result.Categories[outcome.Category] = cs
}
