package runtime

import (
	"testing"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userTask(id string) *bpmn20.TUserTask {
	ut := &bpmn20.TUserTask{}
	ut.Id = id
	return ut
}

func Test_create_child_links_scopes(t *testing.T) {
	// given
	tree := NewExecutionTree(1, map[string]any{"orderItems": []any{"Tic"}})

	// when
	body, err := tree.CreateChild(1, 2, KindMultiInstanceBody, userTask("task"))
	require.NoError(t, err)
	child, err := tree.CreateChild(body.Key, 3, KindActivity, userTask("task"))
	require.NoError(t, err)

	// then
	assert.Equal(t, "task", child.ElementId)
	assert.Same(t, body, child.Parent())
	assert.Same(t, tree.Root().Scope(), body.Scope().Parent())
	assert.Same(t, body.Scope(), child.Scope().Parent())
	assert.Equal(t, []any{"Tic"}, child.Scope().GetVariable("orderItems"))
	assert.Equal(t, 3, tree.Size())
}

func Test_create_child_of_unknown_parent_fails(t *testing.T) {
	tree := NewExecutionTree(1, nil)

	_, err := tree.CreateChild(42, 2, KindActivity, userTask("task"))

	assert.ErrorIs(t, err, ErrUnknownScope)
}

func Test_create_child_with_duplicate_key_fails(t *testing.T) {
	tree := NewExecutionTree(1, nil)
	_, err := tree.CreateChild(1, 2, KindActivity, userTask("task"))
	require.NoError(t, err)

	_, err = tree.CreateChild(1, 2, KindActivity, userTask("task"))

	assert.Error(t, err)
}

func Test_ancestors_are_ordered_from_node_to_root(t *testing.T) {
	tree := NewExecutionTree(1, nil)
	_, _ = tree.CreateChild(1, 2, KindMultiInstanceBody, userTask("task"))
	_, _ = tree.CreateChild(2, 3, KindActivity, userTask("task"))

	ancestors, err := tree.AncestorsOf(3)

	require.NoError(t, err)
	keys := make([]int64, 0, len(ancestors))
	for _, a := range ancestors {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []int64{3, 2, 1}, keys)
}

func Test_remove_drops_subtree_and_detaches_scopes(t *testing.T) {
	// given
	tree := NewExecutionTree(1, nil)
	body, _ := tree.CreateChild(1, 2, KindMultiInstanceBody, userTask("task"))
	child, _ := tree.CreateChild(2, 3, KindActivity, userTask("task"))
	sibling, _ := tree.CreateChild(2, 4, KindActivity, userTask("task"))

	// when
	require.NoError(t, tree.Remove(3))

	// then
	children, err := tree.Children(2)
	require.NoError(t, err)
	assert.Equal(t, []*ElementInstance{sibling}, children)
	_, err = tree.Node(3)
	assert.ErrorIs(t, err, ErrUnknownScope)
	_, _, err = child.Scope().Lookup("x")
	assert.ErrorIs(t, err, ErrUnknownScope)

	// when
	require.NoError(t, tree.Remove(body.Key))

	// then
	assert.Equal(t, 1, tree.Size())
	_, err = tree.AncestorsOf(4)
	assert.ErrorIs(t, err, ErrUnknownScope)
	assert.ErrorIs(t, sibling.Scope().Put("x", 1), ErrUnknownScope)
}

func Test_root_can_not_be_removed(t *testing.T) {
	tree := NewExecutionTree(1, nil)

	err := tree.Remove(1)

	assert.Error(t, err)
	assert.Equal(t, 1, tree.Size())
}

func Test_clear_keeps_only_root(t *testing.T) {
	tree := NewExecutionTree(1, map[string]any{"a": 1})
	_, _ = tree.CreateChild(1, 2, KindActivity, userTask("task"))

	tree.Clear()

	assert.Equal(t, 1, tree.Size())
	assert.Equal(t, 1, tree.Root().Scope().GetVariable("a"))
}
