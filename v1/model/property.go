package model

// Property is one declared property of a template.
type Property struct {
	Name string
	Type Type
	// Of names the target template of TypeRef and TypeRefArray properties.
	Of string

	// Resolved by Registry.Prepare.
	Target        *Template
	Kind          Kind
	CrossDocument bool

	// Transient properties are never persisted.
	Transient bool
	// Local properties live only in memory.
	Local bool

	// Fetch is the property-level eager-load spec.
	Fetch        *Fetch
	NoJoin       bool
	QueryOptions *QueryOptions

	Comment       string
	SensitiveData bool
	Values        []string
	LogChanges    bool
}

// Persisted reports whether the property is stored.
func (p *Property) Persisted() bool {
	return !p.Transient && !p.Local
}

// FetchRequested reports whether the property declaration asks for eager
// loading.
func (p *Property) FetchRequested() bool {
	return p.Fetch.Requested()
}

// PropOption customizes a property declaration.
type PropOption func(*Property)

// Transient excludes the property from persistence.
func Transient() PropOption { return func(p *Property) { p.Transient = true } }

// Local keeps the property in memory only.
func Local() PropOption { return func(p *Property) { p.Local = true } }

// Eager loads the relationship whenever its owner is fetched.
func Eager(f *Fetch) PropOption {
	return func(p *Property) {
		if f == nil {
			f = FetchAll()
		}
		p.Fetch = f
	}
}

// NoJoin loads a one-to-one relationship with its own query instead of a join.
func NoJoin() PropOption { return func(p *Property) { p.NoJoin = true } }

// Ordered sets the query options used when loading a one-to-many relationship.
func Ordered(opts QueryOptions) PropOption {
	return func(p *Property) { p.QueryOptions = &opts }
}

// Comment documents the backing column.
func Comment(text string) PropOption { return func(p *Property) { p.Comment = text } }

// Sensitive flags the column as holding sensitive data.
func Sensitive() PropOption { return func(p *Property) { p.SensitiveData = true } }

// Values lists the allowed values, documented on the column.
func Values(values ...string) PropOption { return func(p *Property) { p.Values = values } }

// LogChanges logs the saved value of the property at debug level.
func LogChanges() PropOption { return func(p *Property) { p.LogChanges = true } }
