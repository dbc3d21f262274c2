package ksvalue

import (
	"sync"

	"github.com/Velocidex/ordereddict"
)

// Getter is implemented by any Value that supports `.name` member access
// beyond plain sequence fields — currently *Obj and the evaluation
// context's `_io` sentinel (pkg/kscontext).
type Getter interface {
	Get(name string) (Value, bool, error)
}

// LazyInstance wraps a deferred computation for a schema `instance`: the
// first access runs eval and caches the result; a failed evaluation is not
// memoized, so a later access (e.g. after the stream position that caused
// the failure becomes readable) gets a fresh attempt.
type LazyInstance struct {
	mu       sync.Mutex
	realized bool
	value    Value
	eval     func() (Value, error)
}

// NewLazyInstance wraps eval for on-demand, memoized-on-success evaluation.
func NewLazyInstance(eval func() (Value, error)) *LazyInstance {
	return &LazyInstance{eval: eval}
}

// Get realizes the instance, running eval at most once per success.
func (li *LazyInstance) Get() (Value, error) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.realized {
		return li.value, nil
	}
	v, err := li.eval()
	if err != nil {
		return nil, err
	}
	li.value = v
	li.realized = true
	return v, nil
}

// Obj is the result tree's object node: an ordered map of sequence fields
// plus a side table of lazy instance accessors: an ordered map of
// sequence fields augmented with on-demand computed accessors.
type Obj struct {
	TypeName      string
	fields        *ordereddict.Dict
	fieldOrder    []string
	instances     map[string]*LazyInstance
	instanceOrder []string
	parent        *Obj
	root          *Obj
}

// NewObj creates an empty object node for typeName, linked to parent/root
// for `_parent`/`_root` expression resolution.
func NewObj(typeName string, parent, root *Obj) *Obj {
	o := &Obj{
		TypeName:  typeName,
		fields:    ordereddict.NewDict(),
		instances: make(map[string]*LazyInstance),
		parent:    parent,
		root:      root,
	}
	if root == nil {
		o.root = o
	}
	return o
}

func (o *Obj) Kind() Kind { return KindObj }
func (o *Obj) String() string { return "<obj " + o.TypeName + ">" }

// Parent returns the enclosing object, or nil at the root.
func (o *Obj) Parent() *Obj { return o.parent }

// Root returns the top-level parsed object.
func (o *Obj) Root() *Obj { return o.root }

// SetField records a sequence field's value in declaration order.
func (o *Obj) SetField(name string, v Value) {
	if _, pres := o.fields.Get(name); !pres {
		o.fieldOrder = append(o.fieldOrder, name)
	}
	o.fields.Set(name, v)
}

// Field looks up a sequence field by name (not instances).
func (o *Obj) Field(name string) (Value, bool) {
	v, pres := o.fields.Get(name)
	if !pres {
		return nil, false
	}
	val, ok := v.(Value)
	return val, ok
}

// FieldNames returns sequence field names in declaration order.
func (o *Obj) FieldNames() []string { return o.fieldOrder }

// SetInstance installs a lazy accessor for a schema `instance` field.
func (o *Obj) SetInstance(name string, li *LazyInstance) {
	if _, pres := o.instances[name]; !pres {
		o.instanceOrder = append(o.instanceOrder, name)
	}
	o.instances[name] = li
}

// InstanceNames returns instance names in the order SetInstance first
// installed them.
func (o *Obj) InstanceNames() []string { return o.instanceOrder }

// Get resolves a member access against fields first, then instances,
// matching the language's field-then-instance identifier resolution order.
func (o *Obj) Get(name string) (Value, bool, error) {
	if v, ok := o.Field(name); ok {
		return v, true, nil
	}
	if li, ok := o.instances[name]; ok {
		v, err := li.Get()
		if err != nil {
			return nil, true, err
		}
		return v, true, nil
	}
	return nil, false, nil
}

// Has reports whether name is a known field or instance, without
// realizing a lazy instance.
func (o *Obj) Has(name string) bool {
	if _, ok := o.Field(name); ok {
		return true
	}
	_, ok := o.instances[name]
	return ok
}
