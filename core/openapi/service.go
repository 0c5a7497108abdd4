package openapi

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/artpar/amodule/core/spec"
	"github.com/swaggo/swag"
)

// Service serves the generated document. The specification never changes
// after load, so the document is generated once and cached.
type Service struct {
	spec *spec.Specification
	opts Options

	once sync.Once
	doc  *Spec
	raw  []byte
	err  error
}

// NewService creates a new OpenAPI service.
func NewService(s *spec.Specification, opts Options) *Service {
	return &Service{spec: s, opts: opts}
}

func (s *Service) build() {
	s.once.Do(func() {
		s.doc = Generate(s.spec, s.opts)
		s.raw, s.err = json.MarshalIndent(s.doc, "", "  ")
		if s.err != nil {
			s.err = fmt.Errorf("marshal openapi document: %w", s.err)
		}
	})
}

// Spec returns the generated document. Callers must not modify it.
func (s *Service) Spec() *Spec {
	s.build()
	return s.doc
}

// JSON returns the document encoded as JSON.
func (s *Service) JSON() ([]byte, error) {
	s.build()
	return s.raw, s.err
}

// ReadDoc implements swag.Swagger.
func (s *Service) ReadDoc() string {
	raw, err := s.JSON()
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Register makes the document available to swag under name, which is what
// the Swagger UI reads its doc.json from. A name may only be registered
// once per process.
func (s *Service) Register(name string) {
	if name == "" {
		name = swag.Name
	}
	swag.Register(name, s)
}

var _ swag.Swagger = (*Service)(nil)
