// Package naming provides the hierarchical names used for components,
// channels and buffers, e.g. "Aggregator.Input[2].Buf".
package naming

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NamedBase is a base implementation of Named.
type NamedBase struct {
	name string
}

// Name returns the name.
func (b *NamedBase) Name() string {
	return b.name
}

// MakeNamedBase creates a new NamedBase after validating the name.
func MakeNamedBase(name string) NamedBase {
	MustBeValid(name)
	return NamedBase{name: name}
}
