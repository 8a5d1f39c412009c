package scenario

import (
	"fmt"
	"slices"
)

type Registry struct {
	kinds   map[string]Builder
	motions map[string]Motion
}

func NewRegistry() *Registry {
	r := &Registry{
		kinds:   make(map[string]Builder),
		motions: make(map[string]Motion),
	}

	r.kinds["chain"] = Chain
	r.kinds["skirt"] = Skirt
	r.kinds["tail"] = Tail

	r.motions["still"] = Still
	r.motions["sway"] = Sway
	r.motions["spin"] = Spin
	r.motions["walk"] = Walk
	r.motions["shake"] = Shake

	return r
}

func (r *Registry) GetBuilder(kind string) (Builder, error) {
	fn, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown rig kind: %s", kind)
	}
	return fn, nil
}

func (r *Registry) GetMotion(name string) (Motion, error) {
	if name == "" {
		return Still, nil
	}
	fn, ok := r.motions[name]
	if !ok {
		return nil, fmt.Errorf("unknown motion: %s", name)
	}
	return fn, nil
}

// RegisterKind adds or replaces a rig kind.
func (r *Registry) RegisterKind(kind string, b Builder) { r.kinds[kind] = b }

func (r *Registry) ListKinds() []string {
	return sortedKeys(r.kinds)
}

func (r *Registry) ListMotions() []string {
	return sortedKeys(r.motions)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
