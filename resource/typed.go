package resource

// Typed is a type-safe view of one kind of value in a Table.
type Typed[T any] struct {
	table  *Table
	typeID TypeID
}

// NewTyped returns a view of table restricted to typeID.
func NewTyped[T any](table *Table, typeID TypeID) Typed[T] {
	return Typed[T]{table: table, typeID: typeID}
}

// Insert adds a value and returns its handle.
func (v Typed[T]) Insert(value T) (Handle, error) {
	return v.table.Insert(v.typeID, value)
}

// Get retrieves a value by handle.
func (v Typed[T]) Get(handle Handle) (T, bool) {
	var zero T
	raw, ok := v.table.GetTyped(handle, v.typeID)
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	return value, ok
}

// Remove drops a value and returns it.
func (v Typed[T]) Remove(handle Handle) (T, bool) {
	var zero T
	raw, ok := v.table.Remove(handle, v.typeID)
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	return value, ok
}
