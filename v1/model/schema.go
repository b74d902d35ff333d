package model

// Entry is the schema descriptor of one template: where it is stored and how
// its relationships map to keys.
type Entry struct {
	Table         string `json:"table"`
	DocumentOf    string `json:"documentOf"`
	SubDocumentOf string `json:"subDocumentOf"`

	Parents  map[string]*ParentRef `json:"parents"`
	Children map[string]*ChildRef  `json:"children"`

	CascadeSave          bool `json:"cascadeSave"`
	EnableChangeTracking bool `json:"enableChangeTracking"`

	Indexes []Index `json:"indexes"`
}

// ParentRef maps a one-to-one property to its foreign-key column.
type ParentRef struct {
	ID     string `json:"id"`
	Fetch  *Fetch `json:"fetch"`
	NoJoin bool   `json:"nojoin"`
	// CrossDocument forces a document-store reference instead of embedding.
	CrossDocument bool `json:"crossDocument"`
}

// FetchRequested reports whether the schema asks for eager loading.
func (p *ParentRef) FetchRequested() bool {
	return p != nil && p.Fetch.Requested()
}

// ChildRef maps a one-to-many property to the children's foreign-key column.
type ChildRef struct {
	ID            string       `json:"id"`
	Filter        *ChildFilter `json:"filter"`
	Fetch         *Fetch       `json:"fetch"`
	PruneOrphans  bool         `json:"pruneOrphans"`
	CrossDocument bool         `json:"crossDocument"`
}

// FetchRequested reports whether the schema asks for eager loading.
func (c *ChildRef) FetchRequested() bool {
	return c != nil && c.Fetch.Requested()
}

// ChildFilter distinguishes sibling one-to-many properties that share the same
// foreign key by the value of one child property.
type ChildFilter struct {
	Property string      `json:"property"`
	Value    interface{} `json:"value"`
}

// Index declares a table index.
type Index struct {
	Name string   `json:"name"`
	Def  IndexDef `json:"def"`
}

// IndexDef lists the indexed columns. Type is "unique" or "index".
type IndexDef struct {
	Columns []string `json:"columns"`
	Type    string   `json:"type"`
}

const (
	IndexTypeUnique = "unique"
	IndexTypeIndex  = "index"
)

// NotPersistent marks a documentOf entry whose template is never stored.
const NotPersistent = "not persistent"
