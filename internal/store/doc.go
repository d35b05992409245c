// Package store defines interfaces for persisting the history of tracker runs
// (run lifecycle plus a trail of completion points). Implementations live in
// other packages; this package must not import database drivers or concrete
// clients.
package store
