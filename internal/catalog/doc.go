// Package catalog persists the item catalog and its post attempt history in
// SQLite. Items carry the rotation stats (post count, last posted time) that
// drive selection, and attempts record the full status trail of every publish
// run. Schema changes ship as embedded migrations applied on open.
package catalog
