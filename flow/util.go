package flow

import "reflect"

// deepEqual is used wherever the engine needs to compare two "any" values
// for equality without panicking on uncomparable types (e.g. maps, slices).
func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
