package database

import (
	"strings"
)

// Classifier decides whether a driver error is a transient I/O failure that
// a reconnect can cure.
type Classifier interface {
	IsTransient(err *DriverError) bool
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err *DriverError) bool

func (f ClassifierFunc) IsTransient(err *DriverError) bool { return f(err) }

// CodeSet classifies by driver code or SQLSTATE. A two-character state
// matches the whole SQLSTATE class ("08" covers every connection exception).
type CodeSet struct {
	codes  map[int]struct{}
	states []string
}

// NewCodeSet creates a CodeSet from numeric driver codes and SQLSTATE values.
func NewCodeSet(codes []int, states []string) CodeSet {
	set := CodeSet{codes: make(map[int]struct{}, len(codes))}
	for _, c := range codes {
		set.codes[c] = struct{}{}
	}
	for _, s := range states {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set.states = append(set.states, s)
		}
	}
	return set
}

// IsTransient reports whether err's code or SQLSTATE is in the set.
func (s CodeSet) IsTransient(err *DriverError) bool {
	if err == nil {
		return false
	}
	if err.Code != 0 {
		if _, ok := s.codes[err.Code]; ok {
			return true
		}
	}
	if err.SQLState == "" {
		return false
	}
	for _, st := range s.states {
		if len(st) == 2 && strings.HasPrefix(err.SQLState, st) {
			return true
		}
		if st == err.SQLState {
			return true
		}
	}
	return false
}

// Codes returns the numeric codes in the set.
func (s CodeSet) Codes() []int {
	out := make([]int, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	return out
}

// States returns the SQLSTATE entries in the set.
func (s CodeSet) States() []string { return append([]string(nil), s.states...) }

var (
	// MySQLTransient covers the client errors for a refused, dropped or
	// vanished server connection.
	MySQLTransient = NewCodeSet(
		[]int{mysqlConnectionError, mysqlConnHostError, mysqlServerGone, mysqlServerLost, mysqlServerLostExt},
		[]string{stateCommLinkFailure},
	)

	// PostgresTransient covers SQLSTATE class 08 and the admin/crash shutdown codes.
	PostgresTransient = NewCodeSet(nil, []string{"08", "57P01", "57P02", "57P03"})

	// GenericTransient covers only synthesized connection failures.
	GenericTransient = NewCodeSet(nil, []string{stateConnectionFailure, stateUnableToConnect})
)

// ClassifierFor returns the built-in transient set for a dialect.
func ClassifierFor(d Dialect) Classifier {
	switch d {
	case DialectMySQL:
		return MySQLTransient
	case DialectPostgres:
		return PostgresTransient
	default:
		return GenericTransient
	}
}

// IsTransient reports whether err carries a driver error c classifies as transient.
func IsTransient(c Classifier, err error) bool {
	de, ok := AsDriverError(err)
	return ok && c.IsTransient(de)
}
