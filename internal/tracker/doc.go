// Package tracker aggregates progress from many independent units of work into
// a single completion ratio. Leaf Counters and StreamCounters report how much of
// their own work is done; Groups combine their children by weight. Every change
// at a leaf is delivered synchronously to listeners on the leaf and on each
// enclosing Group, with the name of the nearest named tracker attached.
package tracker
