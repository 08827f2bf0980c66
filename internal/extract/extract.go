// Package extract walks a heading-structured activity log newest-first and
// keeps the blocks that fall inside the trailing retention window.
//
// The log is a flat sequence of blocks. A top-level heading whose text is a
// YYYYMMDD token opens a dated section; the sections are expected to appear
// most recent first. Extraction is a single forward pass that stops at the
// first dated heading that is too old. Input order is trusted as-is: a log
// whose sections are out of order is cut at the first old heading by
// position, not by date.
package extract

import (
	"strings"
	"time"

	"pwsvc/internal/datefmt"
)

// DefaultRetentionDays is the window used when Options.RetentionDays is unset.
const DefaultRetentionDays = 7

// noneFound is reported as the cutoff when the whole document was consumed.
const noneFound = "none found"

// Role is the structural role of a block. The set is closed.
type Role int

const (
	Body Role = iota
	TopHeading
	SubHeading
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case TopHeading:
		return "top_heading"
	case SubHeading:
		return "sub_heading"
	default:
		return "body"
	}
}

// Block is one paragraph of the source document in visual order.
type Block struct {
	Role Role
	Text string
	// Level is the heading depth for SubHeading blocks (2 or 3); zero means 2.
	Level int
}

// Options tunes an extraction.
type Options struct {
	// RetentionDays is the size of the trailing window. One extra day of
	// grace is always added so that a full N days is covered.
	RetentionDays int
}

func (o Options) retentionDays() int {
	if o.RetentionDays <= 0 {
		return DefaultRetentionDays
	}
	return o.RetentionDays
}

// Result is the outcome of an extraction.
type Result struct {
	// Lines is the rendered markup, one entry per line.
	Lines []string

	// Boundary is today minus (RetentionDays + 1). Dated sections on or
	// before this date are excluded.
	Boundary datefmt.Date

	// CutoffDate is the date of the first excluded section. It is only
	// meaningful when CutoffFound is true.
	CutoffDate  datefmt.Date
	CutoffFound bool

	SectionsIncluded int
	DatedHeadings    int
	BlocksRetained   int
	BlocksTotal      int

	// Fallback is set when no qualifying old heading was found and the
	// whole document was retained.
	Fallback bool
}

// Markup joins the rendered lines into a single document.
func (r Result) Markup() string {
	return strings.Join(r.Lines, "\n")
}

// CutoffString returns the cutoff date as YYYYMMDD, or "none found".
func (r Result) CutoffString() string {
	if !r.CutoffFound {
		return noneFound
	}
	return r.CutoffDate.Heading()
}

// Extract returns the prefix of blocks that lies inside the retention window
// ending on today's calendar date.
func Extract(blocks []Block, today time.Time, opts Options) Result {
	res := Result{
		Boundary:    datefmt.Of(today).AddDays(-(opts.retentionDays() + 1)),
		BlocksTotal: len(blocks),
	}

	kept := len(blocks)
	for i, b := range blocks {
		if b.Role != TopHeading {
			continue
		}
		date, ok := datefmt.ParseHeading(b.Text)
		if !ok {
			continue
		}
		res.DatedHeadings++
		if !date.After(res.Boundary) {
			res.CutoffDate = date
			res.CutoffFound = true
			kept = i
			break
		}
		res.SectionsIncluded++
	}

	res.Fallback = !res.CutoffFound
	res.BlocksRetained = kept
	res.Lines = Render(blocks[:kept])
	return res
}

// Render converts blocks to markdown lines. A blank line separates adjacent
// blocks whose roles differ.
func Render(blocks []Block) []string {
	lines := make([]string, 0, len(blocks)*2)
	for i, b := range blocks {
		if i > 0 && blocks[i-1].Role != b.Role {
			lines = append(lines, "")
		}
		lines = append(lines, renderBlock(b))
	}
	return lines
}

func renderBlock(b Block) string {
	switch b.Role {
	case TopHeading:
		return "# " + b.Text
	case SubHeading:
		if b.Level >= 3 {
			return "### " + b.Text
		}
		return "## " + b.Text
	default:
		return b.Text
	}
}
