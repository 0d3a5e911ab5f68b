package module

// ByProps matches objects that have every named property or method.
func ByProps(props ...string) Filter {
	return func(o *Object) bool {
		if len(props) == 0 {
			return false
		}
		for _, p := range props {
			if !o.Has(p) {
				return false
			}
		}
		return true
	}
}

// ByPrototypes matches objects whose prototype has every named field.
func ByPrototypes(fields ...string) Filter {
	return func(o *Object) bool {
		proto := o.Prototype()
		if proto == nil {
			return false
		}
		return ByProps(fields...)(proto)
	}
}

// ByDisplayName matches objects whose displayName property equals name.
func ByDisplayName(name string) Filter {
	return func(o *Object) bool {
		v, ok := o.Get("displayName")
		return ok && v == name
	}
}

// ByStoreName matches flux stores: objects with a dispatch token whose
// getName method returns name.
func ByStoreName(name string) Filter {
	return func(o *Object) bool {
		if !o.Has("_dispatchToken") || !o.HasMethod("getName") {
			return false
		}
		got, err := o.Call("getName")
		return err == nil && got == name
	}
}

// GetByProps returns the first module export having all props.
func (r *Registry) GetByProps(props ...string) *Object {
	return r.Find(ByProps(props...), DefaultOptions())
}

// GetAllByProps returns every module export having all props.
func (r *Registry) GetAllByProps(props ...string) []*Object {
	return r.FindAll(ByProps(props...), DefaultOptions())
}

// GetByPrototypes returns the first export whose prototype has all fields.
func (r *Registry) GetByPrototypes(fields ...string) *Object {
	return r.Find(ByPrototypes(fields...), DefaultOptions())
}

// GetByDisplayName returns the first export with the given display name.
func (r *Registry) GetByDisplayName(name string) *Object {
	return r.Find(ByDisplayName(name), DefaultOptions())
}

// GetStore returns the store with the given name.
func (r *Registry) GetStore(name string) *Object {
	return r.Find(ByStoreName(name), DefaultOptions())
}

// FindByUniqueProperties returns the exports having all props. When first
// is set at most one export is returned.
func (r *Registry) FindByUniqueProperties(props []string, first bool) []*Object {
	if first {
		if o := r.GetByProps(props...); o != nil {
			return []*Object{o}
		}
		return nil
	}
	return r.GetAllByProps(props...)
}
