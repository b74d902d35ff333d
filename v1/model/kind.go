package model

// Type is the declared value type of a property.
type Type int

const (
	TypeString Type = iota
	TypeNumber
	TypeDate
	TypeBoolean
	// TypeObject is an opaque value stored as JSON.
	TypeObject
	// TypeArray is an array of scalars stored as JSON.
	TypeArray
	// TypeRef references a single object of another template.
	TypeRef
	// TypeRefArray holds an ordered collection of objects of another template.
	TypeRefArray
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeNumber:
		return "Number"
	case TypeDate:
		return "Date"
	case TypeBoolean:
		return "Boolean"
	case TypeObject:
		return "Object"
	case TypeArray:
		return "Array"
	case TypeRef:
		return "Ref"
	case TypeRefArray:
		return "RefArray"
	}
	return "Unknown"
}

// Kind classifies how a property is persisted. It is resolved once by
// Registry.Prepare.
type Kind int

const (
	KindScalar Kind = iota
	KindDate
	KindBoolean
	KindJSON
	KindOneToOne
	KindOneToManyEmbedded
	KindOneToManyReferenced
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindDate:
		return "Date"
	case KindBoolean:
		return "Boolean"
	case KindJSON:
		return "Json"
	case KindOneToOne:
		return "OneToOne"
	case KindOneToManyEmbedded:
		return "OneToManyEmbedded"
	case KindOneToManyReferenced:
		return "OneToManyReferenced"
	}
	return "Unknown"
}

// IsRelationship reports whether the kind links to objects of another template.
func (k Kind) IsRelationship() bool {
	return k == KindOneToOne || k == KindOneToManyEmbedded || k == KindOneToManyReferenced
}

// IsOneToMany reports whether the kind holds a collection of objects.
func (k Kind) IsOneToMany() bool {
	return k == KindOneToManyEmbedded || k == KindOneToManyReferenced
}
