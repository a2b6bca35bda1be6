package signaling

import "testing"

func TestTerminalStatuses(t *testing.T) {
	terminal := []SessionStatus{StatusEnded, StatusDeclined, StatusMissed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}

	live := []SessionStatus{StatusRinging, StatusActive, StatusOpen}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("Expected %s to be live", s)
		}
	}
}

func TestValidTransitions(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		want     bool
	}{
		{StatusRinging, StatusActive, true},
		{StatusRinging, StatusEnded, true},
		{StatusRinging, StatusDeclined, true},
		{StatusRinging, StatusMissed, true},
		{StatusActive, StatusEnded, true},
		{StatusActive, StatusRinging, false},
		{StatusActive, StatusDeclined, false},
		{StatusOpen, StatusEnded, true},
		{StatusOpen, StatusActive, false},
		{StatusEnded, StatusActive, false},
		{StatusDeclined, StatusRinging, false},
		{StatusMissed, StatusActive, false},
		{StatusActive, StatusActive, true},
		{StatusEnded, StatusEnded, true},
	}

	for _, c := range cases {
		if got := ValidTransition(c.from, c.to); got != c.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestFindParticipant(t *testing.T) {
	record := &SessionRecord{
		Participants: []ParticipantDeclared{
			{ID: "alice", DisplayName: "Alice"},
			{ID: "bob", DisplayName: "Bob"},
		},
	}

	p, ok := record.FindParticipant("bob")
	if !ok {
		t.Fatal("Expected to find bob")
	}
	if p.DisplayName != "Bob" {
		t.Errorf("Expected display name Bob, got %s", p.DisplayName)
	}

	if _, ok := record.FindParticipant("carol"); ok {
		t.Error("Did not expect to find carol")
	}
}

func TestCloneIsDeep(t *testing.T) {
	record := &SessionRecord{
		ID:     "s1",
		Status: StatusActive,
		Participants: []ParticipantDeclared{
			{ID: "alice"},
		},
	}

	clone := record.Clone()
	clone.Participants[0].ID = "mallory"
	clone.Status = StatusEnded

	if record.Participants[0].ID != "alice" {
		t.Error("Clone mutation leaked into the original participants")
	}
	if record.Status != StatusActive {
		t.Error("Clone mutation leaked into the original status")
	}
}

func TestIsRoom(t *testing.T) {
	call := &SessionRecord{Status: StatusRinging}
	if call.IsRoom() {
		t.Error("Call without host should not be a room")
	}

	room := &SessionRecord{Status: StatusOpen, HostID: "alice"}
	if !room.IsRoom() {
		t.Error("Record with a host should be a room")
	}
}
