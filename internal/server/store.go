// Package server implements the authoritative in-memory group table: group
// codes, member maps, and the ordered message/notification log.
package server

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 6
)

// Group is a single chat group: its ordered message/notification log and its
// current members. A group exists only while it has at least one member; the
// session manager enforces that invariant and serializes all access.
type Group struct {
	Code    string
	Entries []Entry

	members map[uuid.UUID]string
	order   []uuid.UUID
}

func newGroup(code string) *Group {
	return &Group{
		Code:    code,
		members: make(map[uuid.UUID]string),
	}
}

// MemberNames returns the display names of current members in join order.
func (g *Group) MemberNames() []string {
	return lo.Map(g.order, func(id uuid.UUID, _ int) string {
		return g.members[id]
	})
}

// MemberCount returns the number of current members.
func (g *Group) MemberCount() int {
	return len(g.members)
}

// memberIDs returns a snapshot of member connection IDs in join order. The
// copy lets fan-out proceed over a stable set even as membership changes.
func (g *Group) memberIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), g.order...)
}

func (g *Group) memberName(id uuid.UUID) (string, bool) {
	name, ok := g.members[id]
	return name, ok
}

func (g *Group) addMember(id uuid.UUID, name string) {
	g.members[id] = name
	g.order = append(g.order, id)
}

// renameMember updates the display name in place, preserving join order.
func (g *Group) renameMember(id uuid.UUID, name string) {
	g.members[id] = name
}

func (g *Group) removeMember(id uuid.UUID) {
	delete(g.members, id)
	for i, member := range g.order {
		if member == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *Group) appendEntry(entry Entry) {
	g.Entries = append(g.Entries, entry)
}

// newNotification synthesizes a system log entry for create/join/rename/leave
// events. Notifications share the ordered log with user messages so history
// replay is a single homogeneous sequence.
func newNotification(text string) Entry {
	return Entry{
		User:      SystemAuthor,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		Type:      KindNotification,
	}
}

// Store is the authoritative in-memory group table. It is not safe for
// concurrent use on its own; the session manager is its only writer and
// serializes every access under its mutex.
type Store struct {
	groups map[string]*Group
}

// NewStore creates an empty group table.
func NewStore() *Store {
	return &Store{groups: make(map[string]*Group)}
}

// CreateGroup allocates a new group under a code that is unique among the
// currently active groups. Codes may be reused once a group is deleted. The
// caller is responsible for checking the group-count cap first.
func (s *Store) CreateGroup() *Group {
	code := s.newCode()
	group := newGroup(code)
	s.groups[code] = group
	return group
}

// newCode draws 6-character codes from the uppercase alphanumeric alphabet
// until one not already in use is found.
func (s *Store) newCode() string {
	for {
		buf := make([]byte, codeLength)
		for i := range buf {
			buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := s.groups[code]; !taken {
			return code
		}
	}
}

// Get looks up a group by code.
func (s *Store) Get(code string) (*Group, bool) {
	group, ok := s.groups[code]
	return group, ok
}

// Delete removes a group, releasing its code for reuse.
func (s *Store) Delete(code string) {
	delete(s.groups, code)
}

// Count returns the number of active groups.
func (s *Store) Count() int {
	return len(s.groups)
}
