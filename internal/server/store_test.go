package server

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateGroupUniqueCodes(t *testing.T) {
	store := NewStore()

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		group := store.CreateGroup()
		assert.Regexp(t, codePattern, group.Code)
		_, dup := seen[group.Code]
		require.False(t, dup, "duplicate code %s", group.Code)
		seen[group.Code] = struct{}{}
	}
	assert.Equal(t, 500, store.Count())
}

func TestStoreDeleteReleasesCode(t *testing.T) {
	store := NewStore()
	group := store.CreateGroup()

	got, ok := store.Get(group.Code)
	require.True(t, ok)
	assert.Same(t, group, got)

	store.Delete(group.Code)
	_, ok = store.Get(group.Code)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Count())
}

func TestGroupMembersJoinOrder(t *testing.T) {
	group := newGroup("ABC123")

	first, second, third := uuid.New(), uuid.New(), uuid.New()
	group.addMember(first, "Alice")
	group.addMember(second, "Bob")
	group.addMember(third, "Carol")

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, group.MemberNames())

	// Removal from the middle keeps the remaining order intact.
	group.removeMember(second)
	assert.Equal(t, []string{"Alice", "Carol"}, group.MemberNames())
	assert.Equal(t, 2, group.MemberCount())

	// Renaming keeps the slot.
	group.renameMember(first, "Alicia")
	assert.Equal(t, []string{"Alicia", "Carol"}, group.MemberNames())
}

func TestGroupDuplicateDisplayNames(t *testing.T) {
	group := newGroup("ABC123")
	group.addMember(uuid.New(), "Alice")
	group.addMember(uuid.New(), "Alice")

	// Display names need not be unique; the connection keys are.
	assert.Equal(t, []string{"Alice", "Alice"}, group.MemberNames())
	assert.Equal(t, 2, group.MemberCount())
}

func TestMemberIDsSnapshotIsStable(t *testing.T) {
	group := newGroup("ABC123")
	id := uuid.New()
	group.addMember(id, "Alice")

	snapshot := group.memberIDs()
	group.addMember(uuid.New(), "Bob")

	assert.Len(t, snapshot, 1)
	assert.Equal(t, id, snapshot[0])
}

func TestNewNotification(t *testing.T) {
	entry := newNotification("Alice создал(а) группу.")

	assert.Equal(t, SystemAuthor, entry.User)
	assert.Equal(t, KindNotification, entry.Type)
	assert.NotZero(t, entry.Timestamp)
}
