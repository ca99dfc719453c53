package utils

// Ptr returns a pointer to a copy of v, for optional JSON and YAML fields.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	var zero T
	return ValueOr(v, zero)
}

// ValueOr dereferences v, returning def for nil.
func ValueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
