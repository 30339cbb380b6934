// Package ui renders directory results for the terminal.
//
// Lookup results and listings are drawn as [lipgloss/table] tables with the column headers of the
// display in use. Favorite and personal columns are rendered as markers rather than yes/no.
//
// [Progress] drains the progress channel of an engine request and prints one styled line per
// phase change, so a slow lookup shows which source it is still waiting on:
//
//	Querying 3 sources of profile default...
//	[1/3] people: 4 contacts
//	[2/3] corp: context deadline exceeded
//	...
//
// Styling goes through a [Palette]. [Plain] disables colors for output that is not a terminal.
package ui
