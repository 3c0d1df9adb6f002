package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_lookup_delegates_to_parent(t *testing.T) {
	// given
	root := NewVariableScope(nil, map[string]any{"orderItems": []any{"Tic", "Tac"}})
	child := NewVariableScope(root, nil)

	// when
	v, found, err := child.Lookup("orderItems")

	// then
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []any{"Tic", "Tac"}, v)

	_, found, err = child.LookupLocal("orderItems")
	require.NoError(t, err)
	assert.False(t, found, "the variable is not owned by the child")
}

func Test_lookup_of_missing_variable_is_absent(t *testing.T) {
	root := NewVariableScope(nil, nil)
	child := NewVariableScope(root, nil)

	v, found, err := child.Lookup("nope")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func Test_put_shadows_but_never_modifies_ancestor(t *testing.T) {
	// given
	root := NewVariableScope(nil, map[string]any{"status": "open"})
	child := NewVariableScope(root, nil)

	// when
	err := child.Put("status", "closed")

	// then
	assert.NoError(t, err)
	assert.Equal(t, "closed", child.GetVariable("status"))
	assert.Equal(t, "open", root.GetVariable("status"))
}

func Test_put_global_updates_nearest_defining_scope(t *testing.T) {
	// given
	root := NewVariableScope(nil, map[string]any{"status": "open"})
	body := NewVariableScope(root, map[string]any{"nrOfInstances": 3})
	child := NewVariableScope(body, nil)

	// when
	assert.NoError(t, child.PutGlobal("status", "closed"))
	assert.NoError(t, child.PutGlobal("nrOfInstances", 4))

	// then
	assert.Equal(t, "closed", root.GetLocalVariable("status"))
	assert.Equal(t, 4, body.GetLocalVariable("nrOfInstances"))
	assert.Empty(t, child.LocalVariables())
}

func Test_put_global_of_new_variable_lands_in_root(t *testing.T) {
	root := NewVariableScope(nil, nil)
	child := NewVariableScope(NewVariableScope(root, nil), nil)

	child.SetGlobalVariable("approved", true)

	assert.Equal(t, true, root.GetLocalVariable("approved"))
	assert.Nil(t, child.GetLocalVariable("approved"))
}

func Test_variables_are_flattened_with_nearest_first(t *testing.T) {
	root := NewVariableScope(nil, map[string]any{"a": 1, "b": 1})
	child := NewVariableScope(root, map[string]any{"b": 2, "c": 2})

	vars := child.Variables()

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 2}, vars)
}

func Test_constructor_copies_variables(t *testing.T) {
	input := map[string]any{"a": 1}
	scope := NewVariableScope(nil, input)

	input["a"] = 2

	assert.Equal(t, 1, scope.GetVariable("a"))
}

func Test_detached_scope_reports_unknown_scope(t *testing.T) {
	root := NewVariableScope(nil, map[string]any{"a": 1})
	child := NewVariableScope(root, map[string]any{"b": 1})

	child.detach()

	_, _, err := child.Lookup("a")
	assert.ErrorIs(t, err, ErrUnknownScope)
	_, _, err = child.LookupLocal("b")
	assert.ErrorIs(t, err, ErrUnknownScope)
	assert.ErrorIs(t, child.Put("b", 2), ErrUnknownScope)
	assert.ErrorIs(t, child.PutGlobal("a", 2), ErrUnknownScope)
	assert.Equal(t, 1, root.GetVariable("a"))
}
