package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisplang/wisp/internal/runtime"
	"github.com/wisplang/wisp/internal/value"
)

func TestInternStringDeduplicates(t *testing.T) {
	rt := runtime.New()
	a := rt.InternString(value.NewString([]byte("a rather long string constant")))
	b := rt.InternString(value.NewString([]byte("a rather long string constant")))
	assert.Equal(t, a, b)
}

func TestCopyStringPrefersShort(t *testing.T) {
	rt := runtime.New()
	v := rt.CopyString([]byte("short"))
	assert.True(t, v.IsShortString())
}

func TestDeclareGlobalIsIdempotent(t *testing.T) {
	rt := runtime.New()
	name := rt.CopyString([]byte("counter"))
	slot1, isNew1 := rt.DeclareGlobal(name, true)
	slot2, isNew2 := rt.DeclareGlobal(name, true)
	assert.True(t, isNew1)
	assert.False(t, isNew2)
	assert.Equal(t, slot1, slot2)
	assert.Len(t, rt.Globals, 1)

	resolved, ok := rt.ResolveGlobal(name)
	require.True(t, ok)
	assert.Equal(t, slot1, resolved.SlotIndex)

	gotName, ok := rt.GlobalName(slot1)
	require.True(t, ok)
	assert.Equal(t, "counter", gotName)
}

func TestNewScopeIsolatesDeclarations(t *testing.T) {
	rt := runtime.New()
	parent := rt.NewScope(nil)
	nameA := rt.CopyString([]byte("a"))
	varPtr, _ := rt.NewVar(0, true, false)
	require.NoError(t, parent.Set(rt, nameA, varPtr))

	child := rt.NewScope(parent)
	nameB := rt.CopyString([]byte("b"))
	varPtr2, _ := rt.NewVar(1, true, false)
	require.NoError(t, child.Set(rt, nameB, varPtr2))

	assert.False(t, parent.Get(rt, nameA).IsNone())
	assert.True(t, parent.Get(rt, nameB).IsNone(), "sibling/child declarations must not leak into parent")
	assert.False(t, child.Get(rt, nameA).IsNone(), "child must still see parent's declarations")
	assert.False(t, child.Get(rt, nameB).IsNone())
}
