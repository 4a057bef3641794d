package types

// ContextItemKind discriminates the source of a ContextItem.
type ContextItemKind string

const (
	ContextFile    ContextItemKind = "file"
	ContextWeb     ContextItemKind = "web"
	ContextSummary ContextItemKind = "summary"
	ContextMemory  ContextItemKind = "memory"
)

// ContextItem is a piece of material the Context Builder may inject into
// the system prompt. For kind=file, ContentRef is a path resolved through
// Sandbox FS; for every other kind the builder uses ContentRef itself as
// the item's literal text.
type ContextItem struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	Kind          ContextItemKind `json:"kind"`
	Title         string          `json:"title"`
	ContentRef    string          `json:"contentRef"`
	Pinned        bool            `json:"pinned"`
	Summary       string          `json:"summary,omitempty"`
	SummarySHA256 string          `json:"summarySha256,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
}
