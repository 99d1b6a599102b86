package flow

import "reflect"

// Kind discriminates the shape of a TypeDescriptor. See the component design
// in spec.md §4.2: TypeChecker supports primitives, unions, lists, sets,
// maps, fixed tuples, records with named fields, and enumerations.
type Kind int

const (
	// KindAny matches any value.
	KindAny Kind = iota
	// KindFloat matches int or float values, never bool.
	KindFloat
	// KindInt matches only int-kinded values, never bool or float.
	KindInt
	// KindBool matches only bool.
	KindBool
	// KindString matches only string.
	KindString
	// KindList matches a slice whose elements all match Elem (or any element
	// if Elem is nil).
	KindList
	// KindSet matches a Set value or a native map used as a set, whose
	// elements all match Elem.
	KindSet
	// KindMap matches a map whose keys match Key and values match Value.
	KindMap
	// KindTuple matches a Tuple value, or (JSON-round-trip coercion) a slice
	// of the same length, with each position matching the corresponding
	// entry in Elems.
	KindTuple
	// KindUnion matches if any of Branches matches.
	KindUnion
	// KindRecord matches a map where every declared field in Fields is
	// present and matches; extra keys are permitted.
	KindRecord
	// KindEnum matches an instance of the enum's Go type (if GoType is set)
	// or any primitive equal to one of EnumValues.
	KindEnum
	// KindType matches any value assignable to GoType, via reflection. This
	// is the Go realization of "Primitive T otherwise: is-instance-of T".
	KindType
)

// TypeDescriptor is the tagged-struct stand-in for a Python type annotation;
// see spec.md §9 "Dynamic keyword arguments" — no reflection is required to
// build one. Matches tells primitive kinds apart with type switches and uses
// reflect to walk slices and maps and for the GoType checks of KindEnum and
// KindType.
type TypeDescriptor struct {
	Kind       Kind
	Elem       *TypeDescriptor
	Elems      []TypeDescriptor
	Key        *TypeDescriptor
	Value      *TypeDescriptor
	Fields     map[string]TypeDescriptor
	Branches   []TypeDescriptor
	EnumValues []any
	GoType     reflect.Type
}

// Tuple marks a value as an ordered fixed-length sequence, distinct from a
// plain List. A plain []any (or any other slice) is also accepted where a
// Tuple is expected (the JSON-round-trip coercion in spec.md §4.2), but the
// reverse is not: a Tuple value never matches a List descriptor.
type Tuple []any

// SetValue marks a value as a set with no defined ordering. A native Go map
// (treating keys as members) is also accepted where a Set is expected.
type SetValue []any

// AnyType returns the always-matching descriptor.
func AnyType() TypeDescriptor { return TypeDescriptor{Kind: KindAny} }

// FloatType returns the floating-point descriptor.
func FloatType() TypeDescriptor { return TypeDescriptor{Kind: KindFloat} }

// IntType returns the integer descriptor.
func IntType() TypeDescriptor { return TypeDescriptor{Kind: KindInt} }

// BoolType returns the boolean descriptor.
func BoolType() TypeDescriptor { return TypeDescriptor{Kind: KindBool} }

// StringType returns the string descriptor.
func StringType() TypeDescriptor { return TypeDescriptor{Kind: KindString} }

// ListType returns a List<Elem> descriptor. A nil elem means "no element
// check".
func ListType(elem *TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindList, Elem: elem}
}

// SetType returns a Set<Elem> descriptor.
func SetType(elem *TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindSet, Elem: elem}
}

// MapType returns a Map<Key,Value> descriptor.
func MapType(key, value TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindMap, Key: &key, Value: &value}
}

// TupleType returns a Tuple<T1,...,Tn> descriptor.
func TupleType(elems ...TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindTuple, Elems: elems}
}

// UnionType returns a Union<T1,...,Tn> descriptor.
func UnionType(branches ...TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindUnion, Branches: branches}
}

// RecordType returns a record descriptor with the given named, typed fields.
func RecordType(fields map[string]TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: KindRecord, Fields: fields}
}

// EnumType returns an enumeration descriptor accepting any of values, or (if
// goType is non-nil) any instance of goType.
func EnumType(goType reflect.Type, values ...any) TypeDescriptor {
	return TypeDescriptor{Kind: KindEnum, GoType: goType, EnumValues: values}
}

// OfGoType returns a descriptor matching any value assignable to the type of
// example (the Go realization of "Primitive T otherwise: is-instance-of T").
func OfGoType(example any) TypeDescriptor {
	return TypeDescriptor{Kind: KindType, GoType: reflect.TypeOf(example)}
}

// Matches reports whether obj satisfies the shape described by typ. It never
// panics or returns an error; an unrecognized or mismatched value simply
// yields false.
func Matches(obj any, typ TypeDescriptor) bool {
	switch typ.Kind {
	case KindAny:
		return true
	case KindFloat:
		return isNumeric(obj) && !isBool(obj)
	case KindInt:
		return isIntKind(obj) && !isBool(obj)
	case KindBool:
		return isBool(obj)
	case KindString:
		_, ok := obj.(string)
		return ok
	case KindList:
		return matchesList(obj, typ.Elem)
	case KindSet:
		return matchesSet(obj, typ.Elem)
	case KindMap:
		return matchesMap(obj, typ.Key, typ.Value)
	case KindTuple:
		return matchesTuple(obj, typ.Elems)
	case KindUnion:
		for _, branch := range typ.Branches {
			if Matches(obj, branch) {
				return true
			}
		}
		return false
	case KindRecord:
		return matchesRecord(obj, typ.Fields)
	case KindEnum:
		return matchesEnum(obj, typ)
	case KindType:
		if typ.GoType == nil {
			return false
		}
		t := reflect.TypeOf(obj)
		return t != nil && t.AssignableTo(typ.GoType)
	default:
		return false
	}
}

func isBool(obj any) bool {
	_, ok := obj.(bool)
	return ok
}

func isIntKind(obj any) bool {
	switch obj.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func isNumeric(obj any) bool {
	if isIntKind(obj) {
		return true
	}
	switch obj.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

// sliceElements returns the elements of obj as a []any if obj is a slice
// (including Tuple/SetValue) and reports whether obj was slice-shaped at
// all. acceptTuple controls whether a Tuple value itself is accepted (used to
// implement the one-directional List/Tuple coercion).
func sliceElements(obj any, acceptTuple bool) ([]any, bool) {
	if tup, ok := obj.(Tuple); ok {
		if !acceptTuple {
			return nil, false
		}
		return []any(tup), true
	}
	if set, ok := obj.(SetValue); ok {
		return []any(set), true
	}
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out, true
}

func matchesList(obj any, elem *TypeDescriptor) bool {
	elements, ok := sliceElements(obj, false)
	if !ok {
		return false
	}
	if elem == nil {
		return true
	}
	for _, e := range elements {
		if !Matches(e, *elem) {
			return false
		}
	}
	return true
}

func matchesSet(obj any, elem *TypeDescriptor) bool {
	var elements []any
	if m := reflect.ValueOf(obj); m.IsValid() && m.Kind() == reflect.Map {
		elements = make([]any, 0, m.Len())
		for _, k := range m.MapKeys() {
			elements = append(elements, k.Interface())
		}
	} else {
		set, ok := obj.(SetValue)
		if !ok {
			return false
		}
		elements = []any(set)
	}
	if elem == nil {
		return true
	}
	for _, e := range elements {
		if !Matches(e, *elem) {
			return false
		}
	}
	return true
}

func matchesMap(obj any, key, value *TypeDescriptor) bool {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Map {
		return false
	}
	iter := v.MapRange()
	for iter.Next() {
		if key != nil && !Matches(iter.Key().Interface(), *key) {
			return false
		}
		if value != nil && !Matches(iter.Value().Interface(), *value) {
			return false
		}
	}
	return true
}

func matchesTuple(obj any, elems []TypeDescriptor) bool {
	elements, ok := sliceElements(obj, true)
	if !ok {
		return false
	}
	if len(elements) != len(elems) {
		return false
	}
	for i, e := range elements {
		if !Matches(e, elems[i]) {
			return false
		}
	}
	return true
}

func matchesRecord(obj any, fields map[string]TypeDescriptor) bool {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Map || !reflect.TypeOf("").AssignableTo(v.Type().Key()) {
		return false
	}
	for name, fieldType := range fields {
		val := v.MapIndex(reflect.ValueOf(name))
		if !val.IsValid() {
			return false
		}
		if !Matches(val.Interface(), fieldType) {
			return false
		}
	}
	return true
}

func matchesEnum(obj any, typ TypeDescriptor) bool {
	if typ.GoType != nil {
		t := reflect.TypeOf(obj)
		if t != nil && t.AssignableTo(typ.GoType) {
			return true
		}
	}
	for _, v := range typ.EnumValues {
		if reflect.DeepEqual(obj, v) {
			return true
		}
	}
	return false
}
