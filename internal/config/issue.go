package config

import "fmt"

// IssueClass names a family of configuration problems. It is used as a
// metric attribute, so the set is closed.
type IssueClass string

const (
	IssueParse              IssueClass = "parse"
	IssueSecretLength       IssueClass = "secret_length"
	IssueSecretReuse        IssueClass = "secret_reuse"
	IssueLifetime           IssueClass = "lifetime"
	IssueRefreshPolicy      IssueClass = "refresh_policy"
	IssueDatabaseDriver     IssueClass = "database_driver"
	IssueActivityCapacity   IssueClass = "activity_capacity"
	IssueRateLimit          IssueClass = "rate_limit"
	IssueResetTokenExposure IssueClass = "reset_token_exposure"
)

// Issue is one problem found while loading configuration.
type Issue struct {
	Class IssueClass
	Err   error
}

func newIssue(class IssueClass, format string, args ...any) *Issue {
	return &Issue{Class: class, Err: fmt.Errorf(format, args...)}
}

func (i *Issue) Error() string { return i.Err.Error() }

func (i *Issue) Unwrap() error { return i.Err }

// IssueClasses lists the distinct classes found in err, in order of first
// appearance. Errors that carry no Issue report "load".
func IssueClasses(err error) []IssueClass {
	if err == nil {
		return nil
	}
	var out []IssueClass
	seen := map[IssueClass]bool{}
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if is, ok := e.(*Issue); ok {
			if !seen[is.Class] {
				seen[is.Class] = true
				out = append(out, is.Class)
			}
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	if len(out) == 0 {
		out = append(out, "load")
	}
	return out
}
