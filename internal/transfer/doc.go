// Package transfer copies a set of objects from file, HTTP(S) or gs://
// sources to a destination blob store while reporting progress through a
// tracker tree: one Group per run, one StreamCounter per object.
package transfer
