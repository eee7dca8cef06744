package permission

// Truth is a three-valued logic result. Unknown arises when a predicate cannot
// be evaluated against the object it was given (missing or of the wrong kind).
type Truth int8

const (
	False Truth = iota
	True
	Unknown
)

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Expr is a composable permission rule.
type Expr interface {
	Eval(s *Subject, obj any) Truth
}

// Predicate is a named leaf rule.
type Predicate struct {
	Name string
	Fn   func(s *Subject, obj any) Truth
}

func (p Predicate) Eval(s *Subject, obj any) Truth {
	return p.Fn(s, obj)
}

func (p Predicate) String() string {
	return p.Name
}

type and []Expr

// And is true only if every operand is true. Any false operand makes it false,
// otherwise any unknown operand makes it unknown.
func And(exprs ...Expr) Expr {
	return and(exprs)
}

func (a and) Eval(s *Subject, obj any) Truth {
	result := True
	for _, e := range a {
		switch e.Eval(s, obj) {
		case False:
			return False
		case Unknown:
			result = Unknown
		}
	}
	return result
}

type or []Expr

// Or is true if any operand is true. Otherwise any unknown operand makes it unknown.
func Or(exprs ...Expr) Expr {
	return or(exprs)
}

func (o or) Eval(s *Subject, obj any) Truth {
	result := False
	for _, e := range o {
		switch e.Eval(s, obj) {
		case True:
			return True
		case Unknown:
			result = Unknown
		}
	}
	return result
}

type not struct{ e Expr }

// Not negates its operand; unknown stays unknown.
func Not(e Expr) Expr {
	return not{e: e}
}

func (n not) Eval(s *Subject, obj any) Truth {
	switch n.e.Eval(s, obj) {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

var (
	Always Expr = Predicate{Name: "always", Fn: func(*Subject, any) Truth { return True }}
	Never  Expr = Predicate{Name: "never", Fn: func(*Subject, any) Truth { return False }}
)
