package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesPrimitives(t *testing.T) {
	require.True(t, Matches(1, IntType()))
	require.True(t, Matches(1, FloatType()))
	require.True(t, Matches(1, UnionType(IntType(), StringType())))
	require.True(t, Matches(1.0, FloatType()))
	require.True(t, Matches(1, AnyType()))
	require.True(t, Matches("1", AnyType()))

	require.False(t, Matches(true, IntType()))
	require.False(t, Matches(1, BoolType()))
	require.False(t, Matches(1, StringType()))
	require.True(t, Matches(true, UnionType(BoolType(), StringType())))
	require.False(t, Matches(1, UnionType(BoolType(), StringType())))
}

func TestMatchesSeedExamples(t *testing.T) {
	// Seed examples quoted verbatim from spec.md §8.
	require.True(t, Matches([]any{1, 2}, TupleType(IntType(), IntType())))
	require.False(t, Matches(Tuple{1, 2}, ListType(ptr(IntType()))))
	require.False(t, Matches(1, BoolType()))
	require.False(t, Matches(true, IntType()))
	require.False(t, Matches(1.0, IntType()))
	require.True(t, Matches(1, FloatType()))
}

func TestMatchesListAndUnionElements(t *testing.T) {
	require.True(t, Matches([]any{1, 2}, ListType(ptr(IntType()))))
	require.True(t, Matches([]any{1, "2"}, ListType(ptr(UnionType(IntType(), StringType())))))
	require.False(t, Matches([]any{1, "2"}, ListType(ptr(IntType()))))
}

func TestMatchesMap(t *testing.T) {
	require.True(t, Matches(map[string]any{"a": 1}, MapType(StringType(), IntType())))
	require.False(t, Matches(map[string]any{"a": "1"}, MapType(StringType(), IntType())))
	require.False(t, Matches(map[int]any{1: 1}, MapType(StringType(), IntType())))
}

func TestMatchesTupleCoercion(t *testing.T) {
	require.True(t, Matches(Tuple{1, "2"}, TupleType(IntType(), StringType())))
	require.False(t, Matches(Tuple{1, "2"}, TupleType(IntType(), IntType())))
	require.False(t, Matches(Tuple{1}, TupleType(IntType(), IntType())))
	require.False(t, Matches(Tuple{1, 2, 3}, TupleType(IntType(), IntType())))

	// Lists can match tuples (JSON round-trip coercion) ...
	require.True(t, Matches([]any{1, 2}, TupleType(IntType(), IntType())))
	require.True(t, Matches([]any{1, "2"}, TupleType(IntType(), StringType())))
	require.False(t, Matches([]any{1, "2"}, TupleType(IntType(), IntType())))

	// ... but the reverse is not allowed.
	require.False(t, Matches(Tuple{1, 2}, ListType(ptr(IntType()))))
}

type color int

const (
	colorRed color = iota + 1
	colorGreen
	colorBlue
)

func TestMatchesEnum(t *testing.T) {
	enumDesc := EnumType(nil, int(colorRed), int(colorGreen), int(colorBlue))

	require.True(t, Matches(int(colorRed), enumDesc))
	require.True(t, Matches(1, enumDesc))
	require.True(t, Matches(2, enumDesc))
	require.False(t, Matches(4, enumDesc))
	require.False(t, Matches("RED", enumDesc))
	require.False(t, Matches(nil, enumDesc))
}

func TestMatchesRecord(t *testing.T) {
	schema := map[string]TypeDescriptor{
		"a": IntType(),
		"b": StringType(),
	}
	require.True(t, Matches(map[string]any{"a": 1, "b": "hello"}, RecordType(schema)))
	require.True(t, Matches(map[string]any{"a": 1, "b": "hello", "c": 3}, RecordType(schema)))
	require.False(t, Matches(map[string]any{"a": 1, "b": 2}, RecordType(schema)))
	require.False(t, Matches(map[string]any{"a": 1}, RecordType(schema)))

	listOfRecords := ListType(ptrRecord(schema))
	require.True(t, Matches([]any{map[string]any{"a": 1, "b": "hello"}}, listOfRecords))
}

func TestMatchesGoType(t *testing.T) {
	type customStruct struct{ X int }
	desc := OfGoType(customStruct{})
	require.True(t, Matches(customStruct{X: 1}, desc))
	require.False(t, Matches(1, desc))
}

func ptr(t TypeDescriptor) *TypeDescriptor { return &t }

func ptrRecord(fields map[string]TypeDescriptor) *TypeDescriptor {
	r := RecordType(fields)
	return &r
}
