package canvas

// Group is one gesture's worth of segments sharing a caller-supplied id
type Group struct {
	ID       string
	Segments []Segment
}

func (g *Group) clone() Group {
	segs := make([]Segment, len(g.Segments))
	copy(segs, g.Segments)
	return Group{ID: g.ID, Segments: segs}
}

// StrokeLog is the undo-able drawing history of one room plus its redo stack.
//
// It is not safe for concurrent use; the owning room serializes access.
type StrokeLog struct {
	groups   []*Group
	redo     []*Group
	segments int
}

func NewStrokeLog() *StrokeLog {
	return &StrokeLog{}
}

// Append adds seg to the trailing group when its id matches groupID, otherwise
// it starts a new group. Any append invalidates the redo stack.
func (l *StrokeLog) Append(groupID string, seg Segment) {
	l.redo = nil
	l.segments++

	if n := len(l.groups); n > 0 && l.groups[n-1].ID == groupID {
		last := l.groups[n-1]
		last.Segments = append(last.Segments, seg)
		return
	}
	l.groups = append(l.groups, &Group{ID: groupID, Segments: []Segment{seg}})
}

// Undo moves the last group onto the redo stack. ok is false when there is
// nothing to undo.
func (l *StrokeLog) Undo() (removed Group, ok bool) {
	n := len(l.groups)
	if n == 0 {
		return Group{}, false
	}
	g := l.groups[n-1]
	l.groups[n-1] = nil
	l.groups = l.groups[:n-1]
	l.redo = append(l.redo, g)
	l.segments -= len(g.Segments)
	return g.clone(), true
}

// Redo restores the most recently undone group. ok is false when the redo
// stack is empty.
func (l *StrokeLog) Redo() (restored Group, ok bool) {
	n := len(l.redo)
	if n == 0 {
		return Group{}, false
	}
	g := l.redo[n-1]
	l.redo[n-1] = nil
	l.redo = l.redo[:n-1]
	l.groups = append(l.groups, g)
	l.segments += len(g.Segments)
	return g.clone(), true
}

// Flatten returns every visible segment in group order then append order.
func (l *StrokeLog) Flatten() []Segment {
	out := make([]Segment, 0, l.segments)
	for _, g := range l.groups {
		out = append(out, g.Segments...)
	}
	return out
}

// Clear drops both the history and the redo stack.
func (l *StrokeLog) Clear() {
	l.groups = nil
	l.redo = nil
	l.segments = 0
}

// Groups returns a copy of the visible groups.
func (l *StrokeLog) Groups() []Group {
	out := make([]Group, len(l.groups))
	for i, g := range l.groups {
		out[i] = g.clone()
	}
	return out
}

func (l *StrokeLog) Len() int { return len(l.groups) }

func (l *StrokeLog) RedoLen() int { return len(l.redo) }

func (l *StrokeLog) SegmentCount() int { return l.segments }
