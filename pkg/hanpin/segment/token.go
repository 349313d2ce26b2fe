// Package segment turns Han spans into tokens, either through an
// advisory tagger whose output is schema-validated, or through a
// deterministic Forward Maximum Matching fallback. It never fails
// outright: a complete token set always comes back, with failures
// recorded as metadata.
package segment

import "context"

// Sentinel tags carried by fallback tokens.
const (
	FallbackUPOS = "X"
	FallbackXPOS = "UNK"
	FallbackNER  = "O"
)

// Token is one unit of a Han span. Start and End are byte offsets into
// the original text; the concatenation of a span's token texts equals
// the span's text exactly.
type Token struct {
	SpanID string `json:"span_id"`
	Index  int    `json:"index_in_span"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
	UPOS   string `json:"upos"`
	XPOS   string `json:"xpos"`
	NER    string `json:"ner"`
}

// TagRequest is the batched advisory tagging request: every Han span of
// the run in one exchange.
type TagRequest struct {
	SchemaVersion int       `json:"schema_version"`
	Task          string    `json:"task"`
	Tagset        Tagset    `json:"tagset"`
	Spans         []TagSpan `json:"spans"`
}

// Tagset names the tag inventories the advisory side must use.
type Tagset struct {
	UPOS string `json:"upos"`
	XPOS string `json:"xpos"`
	NER  string `json:"ner"`
}

// TagSpan is one Han span in a tagging request.
type TagSpan struct {
	SpanID string `json:"span_id"`
	Text   string `json:"text"`
}

// TagResponse is the advisory tagging response.
type TagResponse struct {
	Spans    []TaggedSpan `json:"spans"`
	Warnings []string     `json:"warnings,omitempty"`
}

// TaggedSpan carries the advisory tokens for one span.
type TaggedSpan struct {
	SpanID string        `json:"span_id"`
	Tokens []TaggedToken `json:"tokens"`
}

// TaggedToken is one advisory token before validation.
type TaggedToken struct {
	Text string `json:"text"`
	UPOS string `json:"upos"`
	XPOS string `json:"xpos"`
	NER  string `json:"ner"`
}

// Tagger is the optional advisory segmentation collaborator. Its output
// is advice to verify, never ground truth; every field is validated
// before use.
type Tagger interface {
	SegmentAndTag(ctx context.Context, req TagRequest) (TagResponse, error)
}

var allowedUPOS = map[string]struct{}{
	"ADJ": {}, "ADP": {}, "ADV": {}, "AUX": {}, "CCONJ": {}, "DET": {},
	"INTJ": {}, "NOUN": {}, "NUM": {}, "PART": {}, "PRON": {}, "PROPN": {},
	"PUNCT": {}, "SCONJ": {}, "SYM": {}, "VERB": {}, "X": {},
}

var allowedNER = map[string]struct{}{
	"O": {}, "PER": {}, "LOC": {}, "ORG": {}, "MISC": {},
}

// ValidUPOS reports whether tag is in the UPOS inventory.
func ValidUPOS(tag string) bool {
	_, ok := allowedUPOS[tag]
	return ok
}

// ValidNER reports whether tag is in the NER inventory.
func ValidNER(tag string) bool {
	_, ok := allowedNER[tag]
	return ok
}
