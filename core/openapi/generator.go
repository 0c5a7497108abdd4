// Package openapi generates OpenAPI 3.0 documents from module specifications.
// Every declared method becomes a POST operation whose request and response
// schemas are derived from the parameter type descriptors.
package openapi

import (
	"fmt"
	"sort"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/core/spec"
)

// Spec represents an OpenAPI 3.0 document.
type Spec struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers,omitempty"`
	Paths      map[string]PathItem   `json:"paths"`
	Components Components            `json:"components"`
	Tags       []Tag                 `json:"tags,omitempty"`
	Security   []SecurityRequirement `json:"security,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Contact     *Contact `json:"contact,omitempty"`
}

// Contact provides contact information.
type Contact struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get  *Operation `json:"get,omitempty"`
	Post *Operation `json:"post,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	Description string                `json:"description,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query, header
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Example     any                `json:"example,omitempty"`

	// Descriptor is the module type descriptor the schema was derived from.
	Descriptor string `json:"x-descriptor,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas         map[string]*Schema        `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme defines an authentication method.
type SecurityScheme struct {
	Type        string `json:"type"`
	Scheme      string `json:"scheme,omitempty"`
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty"`
	In          string `json:"in,omitempty"`
}

// SecurityRequirement specifies required security schemes.
type SecurityRequirement map[string][]string

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Options controls document generation.
type Options struct {
	// BasePath prefixes every API path. Defaults to "/api".
	BasePath string

	// APIKey marks the API operations as requiring an API key.
	APIKey bool

	// Servers are advertised in the document.
	Servers []Server
}

const (
	tagMethods = "methods"
	tagModule  = "module"
	tagRuns    = "runs"

	errorRef = "#/components/schemas/ErrorDocument"
)

// Generate builds the OpenAPI document for a specification.
func Generate(s *spec.Specification, opts Options) *Spec {
	base := opts.BasePath
	if base == "" {
		base = "/api"
	}

	doc := &Spec{
		OpenAPI: "3.0.3",
		Info:    infoFor(s.Module),
		Servers: opts.Servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{
				"ErrorDocument": errorDocumentSchema(),
			},
		},
		Tags: []Tag{
			{Name: tagMethods, Description: "Module operations guarded by the contract"},
			{Name: tagModule, Description: "Specification and metadata"},
			{Name: tagRuns, Description: "Invocation history"},
		},
	}

	if opts.APIKey {
		doc.Components.SecuritySchemes = map[string]SecurityScheme{
			"apiKey": {
				Type:        "apiKey",
				In:          "header",
				Name:        "X-API-Key",
				Description: "API key authentication",
			},
			"bearerAuth": {
				Type:        "http",
				Scheme:      "bearer",
				Description: "API key sent as a bearer token",
			},
		}
		doc.Security = []SecurityRequirement{{"apiKey": {}}, {"bearerAuth": {}}}
	}

	for _, name := range s.MethodNames() {
		m := s.Methods[name]
		in, out := methodSchemas(m)
		doc.Components.Schemas[schemaName(name, "Input")] = in
		doc.Components.Schemas[schemaName(name, "Output")] = out
		doc.Paths[base+"/methods/"+name] = PathItem{Post: methodOperation(m)}
	}

	addFixedPaths(doc, base)

	return doc
}

func infoFor(m spec.ModuleMeta) Info {
	info := Info{
		Title:       m.Name,
		Description: m.Description,
		Version:     m.Version,
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	if m.Author != "" || m.AuthorEmail != "" || m.URL != "" {
		info.Contact = &Contact{Name: m.Author, Email: m.AuthorEmail, URL: m.URL}
	}
	return info
}

func methodOperation(m spec.MethodSpec) *Operation {
	return &Operation{
		Tags:        []string{tagMethods},
		Summary:     fmt.Sprintf("Invoke %s", m.Name),
		Description: "Inputs are validated against the declared types before the method runs; outputs are validated before they are returned.",
		OperationID: "invoke_" + m.Name,
		RequestBody: &RequestBody{
			Required: true,
			Content: map[string]MediaType{
				"application/json": {Schema: &Schema{Ref: "#/components/schemas/" + schemaName(m.Name, "Input")}},
			},
		},
		Responses: map[string]Response{
			"200": {
				Description: "Outputs of " + m.Name,
				Content: map[string]MediaType{
					"application/json": {Schema: &Schema{Ref: "#/components/schemas/" + schemaName(m.Name, "Output")}},
				},
			},
			"400": errorResponse("Malformed request body"),
			"401": errorResponse("Missing or invalid API key"),
			"422": errorResponse("Inputs violate the contract (arity_mismatch, type_mismatch)"),
			"500": errorResponse("Outputs violate the contract (contract_violation)"),
		},
	}
}

func methodSchemas(m spec.MethodSpec) (in, out *Schema) {
	in = objectSchema(m.Input)
	in.Description = fmt.Sprintf("Inputs of %s", m.Name)
	out = objectSchema(m.Output)
	out.Description = fmt.Sprintf("Outputs of %s", m.Name)
	return in, out
}

func objectSchema(params []spec.ParamSpec) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, len(params)),
		Required:   make([]string, 0, len(params)),
	}
	for _, p := range params {
		s.Properties[p.Name] = ParamSchema(p)
		s.Required = append(s.Required, p.Name)
	}
	return s
}

// ParamSchema returns the JSON schema of a parameter's wire form. Arrays
// travel as base64 PNG strings, scalars as JSON numbers.
func ParamSchema(p spec.ParamSpec) *Schema {
	d := p.Type
	s := &Schema{Description: p.Description, Descriptor: d.String()}

	if d.Kind == spec.KindNDArray {
		s.Type = "string"
		s.Format = "byte"
		if s.Description != "" {
			s.Description += ". "
		}
		s.Description += "Base64-encoded PNG image"
		return s
	}

	switch d.Elem {
	case spec.ElemInt:
		s.Type = "integer"
	case spec.ElemUint:
		s.Type = "integer"
		zero := 0.0
		s.Minimum = &zero
	case spec.ElemFloat:
		s.Type = "number"
	case spec.ElemAny:
		s.Type = "number"
	default:
		s.Type, s.Format = scalarType(d.Elem)
		if ndarray.DType(d.Elem).IsUnsigned() {
			zero := 0.0
			s.Minimum = &zero
		}
	}
	return s
}

func scalarType(e spec.ElemType) (typ, format string) {
	switch string(e) {
	case "float32":
		return "number", "float"
	case "float64":
		return "number", "double"
	case "int32", "uint32":
		return "integer", "int32"
	case "int64", "uint64":
		return "integer", "int64"
	default:
		return "integer", ""
	}
}

func addFixedPaths(doc *Spec, base string) {
	ok := func(contentType string) func(desc string) map[string]Response {
		return func(desc string) map[string]Response {
			return map[string]Response{
				"200": {Description: desc, Content: map[string]MediaType{
					contentType: {Schema: &Schema{Type: "object"}},
				}},
			}
		}
	}
	jsonOK := ok("application/json")
	resourceOK := ok("application/vnd.api+json")

	doc.Paths[base+"/spec"] = PathItem{Get: &Operation{
		Tags: []string{tagModule}, Summary: "Full module specification",
		OperationID: "get_spec", Responses: jsonOK("The specification"),
	}}
	doc.Paths[base+"/module"] = PathItem{Get: &Operation{
		Tags: []string{tagModule}, Summary: "Module metadata",
		OperationID: "get_module", Responses: jsonOK("Name, version and dependencies"),
	}}

	limit := Parameter{
		Name: "limit", In: "query", Description: "Maximum number of runs (default 20, max 1000)",
		Schema: &Schema{Type: "integer"},
	}
	runs := resourceOK("Recent runs, newest first")
	runs["400"] = errorResponse("Invalid limit")
	doc.Paths[base+"/runs"] = PathItem{Get: &Operation{
		Tags: []string{tagRuns}, Summary: "Recent invocations",
		OperationID: "list_runs", Parameters: []Parameter{limit}, Responses: runs,
	}}

	one := resourceOK("The run")
	one["404"] = errorResponse("No such run")
	doc.Paths[base+"/runs/{id}"] = PathItem{Get: &Operation{
		Tags: []string{tagRuns}, Summary: "A single invocation", OperationID: "get_run",
		Parameters: []Parameter{{Name: "id", In: "path", Required: true, Schema: &Schema{Type: "string"}}},
		Responses:  one,
	}}
	window := Parameter{
		Name: "window", In: "query", Description: "Only count runs started within this duration, e.g. 24h",
		Schema: &Schema{Type: "string"},
	}
	summary := jsonOK("Summary")
	summary["400"] = errorResponse("Invalid window")
	doc.Paths[base+"/runs/summary"] = PathItem{Get: &Operation{
		Tags: []string{tagRuns}, Summary: "Invocation counts by status and method", OperationID: "summarize_runs",
		Parameters: []Parameter{window},
		Responses:  summary,
	}}
}

func errorResponse(desc string) Response {
	return Response{
		Description: desc,
		Content: map[string]MediaType{
			"application/vnd.api+json": {Schema: &Schema{Ref: errorRef}},
		},
	}
}

func errorDocumentSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"errors": {
				Type: "array",
				Items: &Schema{
					Type: "object",
					Properties: map[string]*Schema{
						"status": {Type: "string"},
						"code": {Type: "string", Enum: []string{
							"bad_request", "unauthorized", "unknown_method",
							"arity_mismatch", "type_mismatch", "contract_violation", "internal_error",
						}},
						"title":  {Type: "string"},
						"detail": {Type: "string"},
					},
					Required: []string{"status", "code", "title"},
				},
			},
		},
		Required: []string{"errors"},
	}
}

// schemaName builds a component name such as "ProcessInput".
func schemaName(method, suffix string) string {
	b := []byte(method)
	if len(b) > 0 && b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b) + suffix
}

// OperationIDs returns the operation IDs of a document, sorted.
func OperationIDs(doc *Spec) []string {
	var ids []string
	for _, item := range doc.Paths {
		for _, op := range []*Operation{item.Get, item.Post} {
			if op != nil {
				ids = append(ids, op.OperationID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
