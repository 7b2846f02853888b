package selector

import (
	"errors"
	"fmt"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

// ErrEmptySelection rejects requests whose total count is zero.
var ErrEmptySelection = errors.New("selection request has no questions")

// InsufficientError reports which category cannot satisfy its quota and by
// how much. Nothing is committed when this is returned.
type InsufficientError struct {
	Category  string
	Kind      catalog.RefKind
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s questions for category %q: requested %d, available %d (shortfall %d)",
		e.Kind, e.Category, e.Requested, e.Available, e.Shortfall())
}

// Shortfall is the number of questions the category is missing.
func (e *InsufficientError) Shortfall() int {
	return e.Requested - e.Available
}
