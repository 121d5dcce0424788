package compiler

import "fmt"

// Error is a compile error with the source position that caused it.
type Error struct {
	Source string // script name, may be empty
	Pos    Position
	Msg    string
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// bailout unwinds the parser or code generator after the first error.
type bailout struct{ err *Error }

func catchBailout(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}
