// Package server implements the session manager: the single writer of group
// and membership state. It validates every inbound operation, mutates the
// store, and hands fan-out payloads to the hub.
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SessionManager owns group lifecycle, membership, and message ordering. All
// operations run under one mutex so capacity checks, log appends, and the
// fan-out enqueue for a group are a single atomic unit: the order entries are
// appended to a log is the order they reach every member's send buffer.
type SessionManager struct {
	mu       sync.Mutex
	store    *Store
	hub      *Hub
	bindings map[uuid.UUID]string // connection -> group code
}

// NewSessionManager creates a session manager bound to the given hub and
// wires the hub's disconnect cleanup back to it.
func NewSessionManager(h *Hub) *SessionManager {
	m := &SessionManager{
		store:    NewStore(),
		hub:      h,
		bindings: make(map[uuid.UUID]string),
	}
	h.sessions = m
	return m
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// validateName applies the display-name rules shared by create and join.
func validateName(name string, maxLen int) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxLen {
		return ErrNameTooLong
	}
	return nil
}

// CreateGroup allocates a fresh group with the caller as sole member, acks
// the caller with the code and one-entry history, and triggers a presence
// broadcast. The returned error mirrors what was acked, for callers that log.
func (m *SessionManager) CreateGroup(c *Client, name string) error {
	cfg := currentConfig()

	if err := validateName(name, cfg.MaxNameLength); err != nil {
		c.ackError(EventCreateGroup, err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, bound := m.bindings[c.id]; bound {
		c.ackError(EventCreateGroup, ErrAlreadyInGroup)
		return ErrAlreadyInGroup
	}
	if m.store.Count() >= cfg.MaxGroups {
		c.ackError(EventCreateGroup, ErrTooManyGroups)
		return ErrTooManyGroups
	}

	group := m.store.CreateGroup()
	group.appendEntry(newNotification(fmt.Sprintf("%s создал(а) группу.", name)))
	group.addMember(c.id, name)
	m.bindings[c.id] = group.Code
	metricActiveGroups.Set(float64(m.store.Count()))

	c.log.Info().Str("group", group.Code).Str("user", name).Msg("group created")
	c.ackOK(EventCreateGroup, AckResponse{
		Success:   true,
		GroupCode: group.Code,
		Messages:  group.Entries,
	})
	m.broadcastMembers(group)
	return nil
}

// JoinGroup adds the caller to an existing group. The join notification is
// appended and broadcast to the whole group, joiner included, and the ack
// carries the full history (containing that notification exactly once) plus
// the current member list.
func (m *SessionManager) JoinGroup(c *Client, name, code string) error {
	cfg := currentConfig()

	if err := validateName(name, cfg.MaxNameLength); err != nil {
		c.ackError(EventJoinGroup, err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, bound := m.bindings[c.id]; bound {
		c.ackError(EventJoinGroup, ErrAlreadyInGroup)
		return ErrAlreadyInGroup
	}
	group, ok := m.store.Get(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		c.ackError(EventJoinGroup, ErrGroupNotFound)
		return ErrGroupNotFound
	}
	if group.MemberCount() >= cfg.MaxUsersPerGroup {
		c.ackError(EventJoinGroup, ErrGroupFull)
		return ErrGroupFull
	}

	entry := newNotification(fmt.Sprintf("%s присоединился(ась).", name))
	group.appendEntry(entry)
	group.addMember(c.id, name)
	m.bindings[c.id] = group.Code

	c.log.Info().Str("group", group.Code).Str("user", name).Msg("joined group")
	m.publish(group, EventNewMessage, entry)
	c.ackOK(EventJoinGroup, AckResponse{
		Success:   true,
		GroupCode: group.Code,
		Members:   group.MemberNames(),
		Messages:  group.Entries,
	})
	m.broadcastMembers(group)
	return nil
}

// Rename changes the caller's display name in place, preserving the
// connection's group binding and the member list order.
func (m *SessionManager) Rename(c *Client, newName string) error {
	cfg := currentConfig()

	if strings.TrimSpace(newName) == "" {
		c.ackError(EventChangeName, ErrNewNameRequired)
		return ErrNewNameRequired
	}
	if utf8.RuneCountInString(newName) > cfg.MaxNameLength {
		c.ackError(EventChangeName, ErrNameTooLong)
		return ErrNameTooLong
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	group, oldName, ok := m.memberOf(c)
	if !ok {
		c.ackError(EventChangeName, ErrRenameFailed)
		return ErrRenameFailed
	}

	group.renameMember(c.id, newName)
	entry := newNotification(fmt.Sprintf("%s сменил(а) имя на %s.", oldName, newName))
	group.appendEntry(entry)

	c.log.Info().Str("group", group.Code).Str("user", newName).Msg("member renamed")
	m.publish(group, EventNewMessage, entry)
	c.ackOK(EventChangeName, AckResponse{Success: true})
	m.broadcastMembers(group)
	return nil
}

// Leave removes the caller from its group, if any. Safe to call any number of
// times per connection; every call after the first is a no-op. Invoked for
// both explicit leave-group events and transport disconnects. The group is
// destroyed atomically with the last member's departure.
func (m *SessionManager) Leave(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, name, ok := m.memberOf(c)
	if !ok {
		return
	}

	group.removeMember(c.id)
	delete(m.bindings, c.id)

	entry := newNotification(fmt.Sprintf("%s покинул(а) группу.", name))
	group.appendEntry(entry)
	c.log.Info().Str("group", group.Code).Str("user", name).Msg("left group")

	if group.MemberCount() == 0 {
		m.store.Delete(group.Code)
		metricActiveGroups.Set(float64(m.store.Count()))
		logger.Info().Str("group", group.Code).Msg("group empty; deleted")
		return
	}

	m.publish(group, EventNewMessage, entry)
	m.broadcastMembers(group)
}

// PostMessage appends a chat message to the caller's group log and fans it
// out to every member, caller included. Drops are silent: a non-member,
// blank or oversize text, or an admission-control rejection produces neither
// a broadcast nor an error to the sender. Returns whether it was delivered.
func (m *SessionManager) PostMessage(c *Client, text string) bool {
	cfg := currentConfig()

	if strings.TrimSpace(text) == "" {
		return false
	}
	if utf8.RuneCountInString(text) > cfg.MaxMessageLength {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	group, name, ok := m.memberOf(c)
	if !ok {
		return false
	}
	if !c.limiter.allow() {
		metricRateLimitedSends.Inc()
		c.log.Debug().Str("group", group.Code).Msg("send budget exhausted; message dropped")
		return false
	}

	entry := Entry{
		User:      name,
		Text:      text,
		Timestamp: nowMillis(),
		Type:      KindMessage,
	}
	group.appendEntry(entry)
	m.publish(group, EventNewMessage, entry)

	// Sending implies the author stopped typing.
	m.publishTyping(group, c, name, false)
	return true
}

// SetTyping relays a transient typing signal to the other members of the
// caller's group. Never stored in the log; a no-op for non-members.
func (m *SessionManager) SetTyping(c *Client, isTyping bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, name, ok := m.memberOf(c)
	if !ok {
		return
	}
	m.publishTyping(group, c, name, isTyping)
}

// GroupCount reports the number of active groups.
func (m *SessionManager) GroupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Count()
}

// memberOf resolves the caller's group and display name. Callers must hold
// the session mutex.
func (m *SessionManager) memberOf(c *Client) (*Group, string, bool) {
	code, bound := m.bindings[c.id]
	if !bound {
		return nil, "", false
	}
	group, ok := m.store.Get(code)
	if !ok {
		delete(m.bindings, c.id)
		return nil, "", false
	}
	name, ok := group.memberName(c.id)
	if !ok {
		delete(m.bindings, c.id)
		return nil, "", false
	}
	return group, name, true
}

// publish fans an event out to the group's current membership snapshot.
func (m *SessionManager) publish(group *Group, event string, data any) {
	m.hub.deliver(group.memberIDs(), marshalEnvelope(event, data))
}

// publishTyping relays a typing state to every member except the sender.
func (m *SessionManager) publishTyping(group *Group, sender *Client, user string, isTyping bool) {
	payload := marshalEnvelope(EventUserTyping, TypingEvent{User: user, IsTyping: isTyping})
	m.hub.deliverExcluding(group.memberIDs(), sender.id, payload)
}

// broadcastMembers pushes the ordered display-name list to the whole group.
func (m *SessionManager) broadcastMembers(group *Group) {
	m.publish(group, EventMembersUpdate, group.MemberNames())
}
