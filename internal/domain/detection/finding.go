// Package detection holds the domain model shared by every stage of a scan:
// the findings a file produces, the per-file result envelope, the chunks handed
// to the entity classifier and the raw entities it returns.
package detection

// Kind distinguishes where a finding came from.
type Kind string

const (
	// KindPII marks a finding produced by the entity classifier.
	KindPII Kind = "PII"
	// KindPattern marks a finding produced by a deterministic rule.
	KindPattern Kind = "Regex"
)

// PatternTypePrefix prefixes the entity type of every pattern finding.
const PatternTypePrefix = "Regex: "

// Finding is one reportable detection. Findings are values; nothing mutates
// them after construction.
type Finding struct {
	Kind        Kind
	EntityType  string
	Score       float64
	HasScore    bool
	MatchedText string
	Context     string
	Offset      int
}

// NewPIIFinding builds a classifier finding.
func NewPIIFinding(entityType string, score float64, matched, context string, offset int) Finding {
	return Finding{
		Kind:        KindPII,
		EntityType:  entityType,
		Score:       score,
		HasScore:    true,
		MatchedText: matched,
		Context:     context,
		Offset:      offset,
	}
}

// NewPatternFinding builds a rule finding. Pattern findings never carry a score.
func NewPatternFinding(label, matched string, offset int) Finding {
	return Finding{
		Kind:        KindPattern,
		EntityType:  PatternTypePrefix + label,
		MatchedText: matched,
		Offset:      offset,
	}
}

// Label returns the entity type without the pattern prefix.
func (f Finding) Label() string {
	if f.Kind == KindPattern && len(f.EntityType) >= len(PatternTypePrefix) {
		return f.EntityType[len(PatternTypePrefix):]
	}
	return f.EntityType
}

// FileResult is the outcome of processing one file. Error and Findings are
// mutually exclusive: a non-empty Error means detection never ran.
type FileResult struct {
	Path     string
	Error    string
	Skipped  bool
	Findings []Finding
}

// Failed reports whether the file could not be scanned.
func (r FileResult) Failed() bool { return r.Error != "" }

// Chunk is a slice of a file's text plus the byte offset of its first byte in
// the original content.
type Chunk struct {
	Text       string
	ByteOffset int
}

// Entity is a raw classifier hit. Begin and End are byte offsets into the
// chunk text that was classified.
type Entity struct {
	Type  string
	Score float64
	Begin int
	End   int
}

// RuneSpanToBytes converts a [begin, end) span measured in code points into
// byte offsets within text. Offsets past the end clamp to len(text).
func RuneSpanToBytes(text string, begin, end int) (int, int) {
	if begin < 0 {
		begin = 0
	}
	byteBegin, byteEnd := len(text), len(text)
	idx := 0
	for i := range text {
		if idx == begin {
			byteBegin = i
		}
		if idx == end {
			byteEnd = i
			break
		}
		idx++
	}
	return byteBegin, byteEnd
}
