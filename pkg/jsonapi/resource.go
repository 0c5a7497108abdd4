package jsonapi

// ResourceBuilder provides a fluent API for building Resource objects.
type ResourceBuilder struct {
	resource Resource
}

// NewResource creates a new ResourceBuilder with the given type and ID.
func NewResource(resourceType, id string) *ResourceBuilder {
	return &ResourceBuilder{
		resource: Resource{
			Type:       resourceType,
			ID:         id,
			Attributes: make(map[string]any),
		},
	}
}

// Attr adds an attribute to the resource.
func (b *ResourceBuilder) Attr(key string, value any) *ResourceBuilder {
	b.resource.Attributes[key] = value
	return b
}

// AttrIf adds an attribute when cond holds.
func (b *ResourceBuilder) AttrIf(cond bool, key string, value any) *ResourceBuilder {
	if cond {
		b.resource.Attributes[key] = value
	}
	return b
}

// Meta adds metadata to the resource.
func (b *ResourceBuilder) Meta(key string, value any) *ResourceBuilder {
	if b.resource.Meta == nil {
		b.resource.Meta = make(Meta)
	}
	b.resource.Meta[key] = value
	return b
}

// Link sets the self link for the resource.
func (b *ResourceBuilder) Link(self string) *ResourceBuilder {
	b.resource.Links = &ResourceLinks{Self: self}
	return b
}

// Build returns the constructed Resource.
func (b *ResourceBuilder) Build() Resource {
	return b.resource
}
