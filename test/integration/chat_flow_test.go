package integration

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/popchat/popchat/internal/server"
	"github.com/popchat/popchat/test/testhelpers"
)

var codePattern = regexp.MustCompile(`^[0-9A-Z]{6}$`)

func TestGroupLifecycle(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir(), MessageMinIntervalMS: -1})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	// Alice creates a group and receives a one-entry history.
	alice := testhelpers.Connect(t, ts)
	testhelpers.Send(t, alice, server.EventCreateGroup, server.CreateGroupRequest{UserName: "Alice"})
	createAck := testhelpers.DecodeAck(t, testhelpers.ExpectEvent(t, alice, server.EventCreateGroup))
	if !createAck.Success {
		t.Fatalf("create-group failed: %s", createAck.Message)
	}
	if !codePattern.MatchString(createAck.GroupCode) {
		t.Errorf("Unexpected group code format: %q", createAck.GroupCode)
	}
	if len(createAck.Messages) != 1 || createAck.Messages[0].Text != "Alice создал(а) группу." {
		t.Errorf("Unexpected creation history: %+v", createAck.Messages)
	}
	members := testhelpers.DecodeMembers(t, testhelpers.ExpectEvent(t, alice, server.EventMembersUpdate))
	if len(members) != 1 || members[0] != "Alice" {
		t.Errorf("Expected members [Alice], got %v", members)
	}

	// Bob joins with the code; both sides see the notification and presence.
	bob := testhelpers.Connect(t, ts)
	joinAck := testhelpers.JoinGroup(t, bob, "Bob", createAck.GroupCode)
	if !joinAck.Success {
		t.Fatalf("join-group failed: %s", joinAck.Message)
	}
	if len(joinAck.Members) != 2 || joinAck.Members[0] != "Alice" || joinAck.Members[1] != "Bob" {
		t.Errorf("Expected members [Alice Bob], got %v", joinAck.Members)
	}
	joinSeen := 0
	for _, entry := range joinAck.Messages {
		if entry.Text == "Bob присоединился(ась)." {
			joinSeen++
		}
	}
	if joinSeen != 1 {
		t.Errorf("Joiner history must contain its join notification exactly once, saw %d", joinSeen)
	}

	aliceNotified := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, alice, server.EventNewMessage))
	if aliceNotified.Text != "Bob присоединился(ась)." || aliceNotified.Type != "notification" {
		t.Errorf("Unexpected join notification for Alice: %+v", aliceNotified)
	}
	aliceMembers := testhelpers.DecodeMembers(t, testhelpers.ExpectEvent(t, alice, server.EventMembersUpdate))
	if len(aliceMembers) != 2 {
		t.Errorf("Expected 2 members after join, got %v", aliceMembers)
	}

	// Alice posts a message; both receive it in order.
	testhelpers.Send(t, alice, server.EventSendMessage, server.SendMessageRequest{Text: "hi"})
	aliceMsg := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, alice, server.EventNewMessage))
	bobMsg := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, bob, server.EventNewMessage))
	for _, entry := range []server.Entry{aliceMsg, bobMsg} {
		if entry.User != "Alice" || entry.Text != "hi" || entry.Type != "message" {
			t.Errorf("Unexpected message entry: %+v", entry)
		}
	}

	// Bob disconnects; Alice sees the departure and the shrunken member list.
	_ = bob.Close()
	departed := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, alice, server.EventNewMessage))
	if departed.Text != "Bob покинул(а) группу." {
		t.Errorf("Unexpected departure notification: %+v", departed)
	}
	remaining := testhelpers.DecodeMembers(t, testhelpers.ExpectEvent(t, alice, server.EventMembersUpdate))
	if len(remaining) != 1 || remaining[0] != "Alice" {
		t.Errorf("Expected members [Alice] after disconnect, got %v", remaining)
	}

	// Alice leaves as the last member; the group dies and its code stops
	// resolving. Pipelining the rejoin on the same connection guarantees
	// the leave is processed first.
	testhelpers.Send(t, alice, server.EventLeaveGroup, nil)
	rejoinAck := testhelpers.JoinGroup(t, alice, "Alice", createAck.GroupCode)
	if rejoinAck.Success {
		t.Fatal("Joining a deleted group must fail")
	}
	if rejoinAck.Message != "Группа не найдена." {
		t.Errorf("Unexpected join failure message: %q", rejoinAck.Message)
	}
	if n := server.GetSessions().GroupCount(); n != 0 {
		t.Errorf("Expected no live groups after the last member left, got %d", n)
	}
}

func TestTypingRelay(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir()})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	alice := testhelpers.Connect(t, ts)
	code := testhelpers.CreateGroup(t, alice, "Alice")
	bob := testhelpers.Connect(t, ts)
	if ack := testhelpers.JoinGroup(t, bob, "Bob", code); !ack.Success {
		t.Fatalf("join failed: %s", ack.Message)
	}
	testhelpers.ExpectEvent(t, alice, server.EventMembersUpdate)
	testhelpers.ExpectEvent(t, bob, server.EventMembersUpdate)

	testhelpers.Send(t, bob, server.EventTyping, server.TypingRequest{IsTyping: true})

	frame := testhelpers.ExpectEvent(t, alice, server.EventUserTyping)
	var typing server.TypingEvent
	if err := json.Unmarshal(frame.Data, &typing); err != nil {
		t.Fatalf("Failed to decode typing event: %v", err)
	}
	if typing.User != "Bob" || !typing.IsTyping {
		t.Errorf("Unexpected typing event: %+v", typing)
	}

	// The sender never sees its own typing echo.
	testhelpers.ExpectNothing(t, bob, 300*time.Millisecond)
}

func TestSendBudgetSilentDrop(t *testing.T) {
	server.SetConfig(&server.Config{
		StaticDir:            t.TempDir(),
		MessageLimit:         3,
		MessageMinIntervalMS: -1,
	})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	alice := testhelpers.Connect(t, ts)
	code := testhelpers.CreateGroup(t, alice, "Alice")
	bob := testhelpers.Connect(t, ts)
	if ack := testhelpers.JoinGroup(t, bob, "Bob", code); !ack.Success {
		t.Fatalf("join failed: %s", ack.Message)
	}
	testhelpers.ExpectEvent(t, bob, server.EventMembersUpdate)

	for i := 0; i < 4; i++ {
		testhelpers.Send(t, alice, server.EventSendMessage, server.SendMessageRequest{Text: "spam"})
	}

	// Only the budgeted messages arrive; the 4th is dropped with no error
	// frame of any kind. Each accepted message is followed by a typing-stop
	// relay, so drain that too before asserting silence.
	for i := 0; i < 3; i++ {
		entry := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, bob, server.EventNewMessage))
		if entry.Text != "spam" {
			t.Errorf("Unexpected message text: %q", entry.Text)
		}
	}
	testhelpers.ExpectEvent(t, bob, server.EventUserTyping)
	testhelpers.ExpectNothing(t, bob, 300*time.Millisecond)
}

func TestRenameFlow(t *testing.T) {
	server.SetConfig(&server.Config{StaticDir: t.TempDir()})
	t.Cleanup(func() { server.SetConfig(nil) })

	ts := testhelpers.StartTestServer(t)

	alice := testhelpers.Connect(t, ts)
	code := testhelpers.CreateGroup(t, alice, "Alice")
	bob := testhelpers.Connect(t, ts)
	if ack := testhelpers.JoinGroup(t, bob, "Bob", code); !ack.Success {
		t.Fatalf("join failed: %s", ack.Message)
	}
	// Drain Alice's join notification so the rename one is next.
	testhelpers.ExpectEvent(t, alice, server.EventNewMessage)
	testhelpers.ExpectEvent(t, alice, server.EventMembersUpdate)

	testhelpers.Send(t, bob, server.EventChangeName, server.ChangeNameRequest{NewName: "Robert"})
	ack := testhelpers.DecodeAck(t, testhelpers.ExpectEvent(t, bob, server.EventChangeName))
	if !ack.Success {
		t.Fatalf("change-name failed: %s", ack.Message)
	}

	renamed := testhelpers.DecodeEntry(t, testhelpers.ExpectEvent(t, alice, server.EventNewMessage))
	if renamed.Text != "Bob сменил(а) имя на Robert." {
		t.Errorf("Unexpected rename notification: %+v", renamed)
	}
}
