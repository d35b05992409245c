// Package render draws a tracker tree to a terminal as a progress bar,
// optionally followed by the indented debug tree.
package render
