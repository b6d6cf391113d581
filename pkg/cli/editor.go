package cli

// DefaultMaxLine is the default input line capacity.
const DefaultMaxLine = 50

// Action tells the session what to do after feeding one byte.
type Action int

const (
	// ActionNone means the byte changed nothing.
	ActionNone Action = iota
	// ActionAppend means the byte was appended to the line.
	ActionAppend
	// ActionErase means the last character was removed.
	ActionErase
	// ActionDispatch means the line is complete.
	ActionDispatch
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionAppend:
		return "append"
	case ActionErase:
		return "erase"
	case ActionDispatch:
		return "dispatch"
	}
	return "none"
}

const (
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// Editor is the line editing state machine. It is not safe for concurrent
// use; only the CLI task owns it.
type Editor struct {
	line []byte
	last []byte
	prev byte
}

// NewEditor creates an Editor holding at most maxLine characters.
func NewEditor(maxLine int) *Editor {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &Editor{
		line: make([]byte, 0, maxLine),
		last: make([]byte, 0, maxLine),
	}
}

// Feed processes one received byte.
func (e *Editor) Feed(b byte) Action {
	prev := e.prev
	e.prev = b
	switch {
	case b == '\r' || b == '\n':
		if (prev == '\r' || prev == '\n') && prev != b {
			// second half of CRLF or LFCR
			e.prev = 0
			return ActionNone
		}
		return ActionDispatch
	case b == keyBackspace || b == keyDelete:
		if len(e.line) == 0 {
			return ActionNone
		}
		e.line = e.line[:len(e.line)-1]
		return ActionErase
	case b >= 0x20 && b <= 0x7e:
		if len(e.line) >= cap(e.line) {
			return ActionNone
		}
		e.line = append(e.line, b)
		return ActionAppend
	}
	return ActionNone
}

// Line returns the characters collected so far.
func (e *Editor) Line() string {
	return string(e.line)
}

// Last returns the last dispatched line.
func (e *Editor) Last() string {
	return string(e.last)
}

// Pending returns the line to dispatch: the collected characters, or the last
// dispatched line if nothing was typed.
func (e *Editor) Pending() string {
	if len(e.line) == 0 {
		return string(e.last)
	}
	return string(e.line)
}

// Commit remembers line as the last command and clears the input.
func (e *Editor) Commit(line string) {
	if len(line) > cap(e.last) {
		line = line[:cap(e.last)]
	}
	e.last = append(e.last[:0], line...)
	e.line = e.line[:0]
}
