package reorder

import (
	"errors"
	"slices"
)

var (
	ErrUnknownActivity = errors.New("activity not in list")
	ErrSessionEnded    = errors.New("drag session ended")
)

type Position int

const (
	Before Position = iota
	After
)

// PositionFor places a drop after the hovered item when the pointer is below
// its vertical midpoint.
func PositionFor(pointerY, top, height float64) Position {
	if pointerY > top+height/2 {
		return After
	}
	return Before
}

// Session holds the state of a single drag gesture over one day's activity
// list. Each gesture gets its own session, so concurrent lists never share
// dragged or hovered items.
type Session struct {
	dayID   string
	order   []string
	dragged string
	over    string
	ended   bool
}

func Start(dayID string, order []string, dragged string) (*Session, error) {
	if !slices.Contains(order, dragged) {
		return nil, ErrUnknownActivity
	}
	return &Session{
		dayID:   dayID,
		order:   slices.Clone(order),
		dragged: dragged,
	}, nil
}

// Enter records the item under the pointer. The dragged item itself and
// items outside the list are ignored.
func (s *Session) Enter(target string) {
	if s.ended || target == s.dragged || !slices.Contains(s.order, target) {
		return
	}
	s.over = target
}

// Drop moves the dragged item next to the hovered one and returns the
// resulting order. Without a hovered item the order is unchanged.
func (s *Session) Drop(pos Position) ([]string, error) {
	if s.ended {
		return nil, ErrSessionEnded
	}
	if s.over == "" || s.over == s.dragged {
		return slices.Clone(s.order), nil
	}

	rest := slices.DeleteFunc(slices.Clone(s.order), func(id string) bool { return id == s.dragged })
	idx := slices.Index(rest, s.over)
	if pos == After {
		idx++
	}
	s.order = slices.Insert(rest, idx, s.dragged)
	return slices.Clone(s.order), nil
}

// End clears the drag state; the session cannot be reused.
func (s *Session) End() {
	s.dragged = ""
	s.over = ""
	s.ended = true
}

// Request is the payload describing the session's current order.
func (s *Session) Request() Request {
	return Request{DayID: s.dayID, ActivityOrder: slices.Clone(s.order)}
}
