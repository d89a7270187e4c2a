// Package chunker splits large documents into bounded-size sections so a
// single extraction call never exceeds the model's context budget. Splits
// prefer natural statement boundaries (per-card sections, the trailing
// installment section); a hard offset split is the last resort for a single
// oversized section.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// Chunk is a half-open [Start,End) slice of the normalized document text,
// tagged with a provenance label for result merging. Chunks exist only for
// the duration of one extraction run.
type Chunk struct {
	Label string
	Start int
	End   int
	Text  string
}

// Section is a natural boundary detected in the document: where a card
// section or the installment section begins.
type Section struct {
	Label string
	Start int
}

var (
	cardSectionHeader = regexp.MustCompile(`(?mi)^.*(?:lan[çc]amentos|compras|despesas).*(?:cart[ãa]o|final)\s*[*xX•\d ]*\d{4}.*$`)
	installmentHeader = regexp.MustCompile(`(?mi)^.*(?:parcelamento|compras parceladas).*$`)
	maskedInHeader    = regexp.MustCompile(`\d{4}\s*$|final\s+\d{4}`)
)

// Sections locates natural split points for a document. Bank statements
// have no card sections; the installment header only matters on the
// credit-card path.
func Sections(text string, kind domain.DocumentKind) []Section {
	if kind != domain.KindCreditCardStatement {
		return nil
	}

	var sections []Section
	for _, loc := range cardSectionHeader.FindAllStringIndex(text, -1) {
		header := text[loc[0]:loc[1]]
		label := "card"
		if m := maskedInHeader.FindString(header); m != "" {
			label = "card-" + lastDigits(m)
		}
		sections = append(sections, Section{Label: label, Start: loc[0]})
	}
	if loc := installmentHeader.FindStringIndex(text); loc != nil {
		sections = append(sections, Section{Label: "installments", Start: loc[0]})
	}

	sort.Slice(sections, func(i, j int) bool { return sections[i].Start < sections[j].Start })
	return sections
}

// Split cuts text into chunks no larger than budget characters. The whole
// document is one chunk when it fits. Otherwise section boundaries divide
// it; any piece still over budget is hard-split at offsets. The union of
// the returned spans always covers [0,len(text)) with no gaps or overlaps.
func Split(text string, sections []Section, budget int) []Chunk {
	if budget <= 0 || len(text) <= budget {
		return []Chunk{{Label: "document", Start: 0, End: len(text), Text: text}}
	}

	boundaries := sectionSpans(len(text), sections)

	var chunks []Chunk
	for _, b := range boundaries {
		if b.End-b.Start <= budget {
			chunks = append(chunks, Chunk{
				Label: b.Label,
				Start: b.Start,
				End:   b.End,
				Text:  text[b.Start:b.End],
			})
			continue
		}
		chunks = append(chunks, hardSplit(text, b, budget)...)
	}
	return chunks
}

type span struct {
	Label string
	Start int
	End   int
}

// sectionSpans turns section start offsets into contiguous spans covering
// the whole text. Text before the first section belongs to a preamble span.
func sectionSpans(length int, sections []Section) []span {
	if len(sections) == 0 {
		return []span{{Label: "document", Start: 0, End: length}}
	}

	var spans []span
	if sections[0].Start > 0 {
		spans = append(spans, span{Label: "preamble", Start: 0, End: sections[0].Start})
	}
	for i, s := range sections {
		end := length
		if i+1 < len(sections) {
			end = sections[i+1].Start
		}
		if s.Start >= end {
			continue
		}
		spans = append(spans, span{Label: s.Label, Start: s.Start, End: end})
	}
	return spans
}

// hardSplit cuts an oversized span at character offsets, preferring the last
// newline inside the budget so lines are not torn mid-transaction.
func hardSplit(text string, b span, budget int) []Chunk {
	var chunks []Chunk
	start := b.Start
	part := 1
	for start < b.End {
		end := start + budget
		if end >= b.End {
			end = b.End
		} else if nl := strings.LastIndexByte(text[start:end], '\n'); nl > 0 {
			end = start + nl + 1
		}
		chunks = append(chunks, Chunk{
			Label: fmt.Sprintf("%s/part-%d", b.Label, part),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		start = end
		part++
	}
	return chunks
}

func lastDigits(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[len(fields)-1]
}
