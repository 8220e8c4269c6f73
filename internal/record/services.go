package record

import (
	"roadlog/internal/index"
	"roadlog/internal/kv"
	"roadlog/pkg/domain"
)

// Services holds one Service per supported record kind. The external
// transport dispatches requests to the owning instance by kind.
type Services map[domain.Kind]*Service

// NewServices constructs a service for every supported kind over shared
// store and index infrastructure. All kinds receive the same options.
func NewServices(store kv.Store, indexes *index.Registry, opts ...Option) (Services, error) {
	services := make(Services, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		svc, err := New(kind, store, indexes, opts...)
		if err != nil {
			return nil, err
		}
		services[kind] = svc
	}
	return services, nil
}

// For returns the service owning the given kind.
func (s Services) For(kind domain.Kind) (*Service, bool) {
	svc, ok := s[kind]
	return svc, ok
}

// Kinds lists the constructed kinds in domain order.
func (s Services) Kinds() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(s))
	for _, kind := range domain.Kinds() {
		if _, ok := s[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
