package codec

// Leaf is a single primitive reference within a Schema tree: a primitive
// kind plus its arguments and an optional name for diagnostics.
type Leaf struct {
	Name string
	Kind Kind
	Args Args
}

// Schema is a rose tree whose leaves are primitive references and whose
// internal nodes are ordered lists of children. A Schema with a non-nil Leaf
// is itself a leaf node; otherwise Children is walked depth-first.
type Schema struct {
	Leaf     *Leaf
	Children []Schema
}

// Seq builds an internal schema node from an ordered list of children.
func Seq(children ...Schema) Schema {
	return Schema{Children: children}
}

// L builds a leaf schema node.
func L(name string, kind Kind, args Args) Schema {
	return Schema{Leaf: &Leaf{Name: name, Kind: kind, Args: args}}
}
