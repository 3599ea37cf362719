package drag

import (
	"context"
	"math"
	"time"

	"example.com/tracker/internal/domain"
)

// DayGrid maps pointer positions on a month or week view to days.
type DayGrid struct {
	Origin     Point
	CellWidth  float64
	CellHeight float64
	Columns    int
	Rows       int
	// FirstDay is the first cell's calendar date. Only its year, month and
	// day are used, read in FirstDay's own location.
	FirstDay time.Time
}

// Target implements TargetFunc.
func (g DayGrid) Target(p Point) (time.Time, bool) {
	if g.CellWidth <= 0 || g.CellHeight <= 0 || g.Columns <= 0 || g.Rows <= 0 {
		return time.Time{}, false
	}
	col := int(math.Floor((p.X - g.Origin.X) / g.CellWidth))
	row := int(math.Floor((p.Y - g.Origin.Y) / g.CellHeight))
	if col < 0 || col >= g.Columns || row < 0 || row >= g.Rows {
		return time.Time{}, false
	}
	return g.FirstDay.AddDate(0, 0, row*g.Columns+col), true
}

// Rescheduler moves calendar events. domain.CalendarService and the HTTP
// client both satisfy it.
type Rescheduler interface {
	Reschedule(ctx context.Context, in domain.RescheduleInput) (domain.RescheduleResult, error)
}

// DropHandler turns drops into Reschedule calls that keep the original
// duration. propagate controls whether the linked source row follows the
// event. onResult, when set, receives each result including its warnings.
func DropHandler(ctx context.Context, r Rescheduler, userID string, propagate bool, onResult func(domain.RescheduleResult)) func(Drop) error {
	return func(drop Drop) error {
		end := drop.NewEnd()
		result, err := r.Reschedule(ctx, domain.RescheduleInput{
			EventID:            drop.ID,
			UserID:             userID,
			NewStart:           drop.NewStart,
			NewEnd:             &end,
			UpdateLinkedEntity: propagate,
		})
		if err != nil {
			return err
		}
		if onResult != nil {
			onResult(result)
		}
		return nil
	}
}
