package types

import (
	"strings"
	"testing"
	"time"
)

func TestTicketValidation(t *testing.T) {
	now := time.Now().UTC()
	closed := now.Add(time.Minute)
	deadline := now.Add(24 * time.Hour)

	tests := []struct {
		name    string
		ticket  Ticket
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid new ticket",
			ticket: Ticket{
				ID:        "t-1",
				Source:    SourcePortal,
				AuthorID:  "u-1",
				Body:      "printer is on fire",
				Status:    StatusNew,
				CreatedAt: now,
			},
			wantErr: false,
		},
		{
			name: "missing body",
			ticket: Ticket{
				ID:       "t-1",
				Source:   SourcePortal,
				AuthorID: "u-1",
				Body:     "   ",
				Status:   StatusNew,
			},
			wantErr: true,
			errMsg:  "body is required",
		},
		{
			name: "missing author",
			ticket: Ticket{
				ID:     "t-1",
				Source: SourceEmail,
				Body:   "help",
				Status: StatusNew,
			},
			wantErr: true,
			errMsg:  "author_id is required",
		},
		{
			name: "invalid source",
			ticket: Ticket{
				ID:       "t-1",
				Source:   Source("fax"),
				AuthorID: "u-1",
				Body:     "help",
				Status:   StatusNew,
			},
			wantErr: true,
			errMsg:  "invalid source",
		},
		{
			name: "closed without closed_at",
			ticket: Ticket{
				ID:        "t-1",
				Source:    SourcePortal,
				AuthorID:  "u-1",
				Body:      "help",
				Status:    StatusClosed,
				CreatedAt: now,
			},
			wantErr: true,
			errMsg:  "must have closed_at",
		},
		{
			name: "auto_resolved without closed_at",
			ticket: Ticket{
				ID:           "t-1",
				Source:       SourcePortal,
				AuthorID:     "u-1",
				Body:         "help",
				Status:       StatusAutoResolved,
				AutoResolved: true,
				CreatedAt:    now,
			},
			wantErr: true,
			errMsg:  "must have closed_at",
		},
		{
			name: "open ticket with closed_at",
			ticket: Ticket{
				ID:        "t-1",
				Source:    SourcePortal,
				AuthorID:  "u-1",
				Body:      "help",
				Status:    StatusInWork,
				CreatedAt: now,
				ClosedAt:  &closed,
			},
			wantErr: true,
			errMsg:  "cannot have closed_at",
		},
		{
			name: "confidence out of range",
			ticket: Ticket{
				ID:           "t-1",
				Source:       SourcePortal,
				AuthorID:     "u-1",
				Body:         "help",
				Status:       StatusNew,
				AIConfidence: 1.2,
				CreatedAt:    now,
			},
			wantErr: true,
			errMsg:  "ai_confidence must be within [0,1]",
		},
		{
			name: "deadline before creation",
			ticket: Ticket{
				ID:          "t-1",
				Source:      SourcePortal,
				AuthorID:    "u-1",
				Body:        "help",
				Status:      StatusNew,
				Priority:    PriorityMedium,
				CreatedAt:   now,
				SLADeadline: &now,
			},
			wantErr: true,
			errMsg:  "sla_deadline must be after created_at",
		},
		{
			name: "valid closed ticket",
			ticket: Ticket{
				ID:          "t-1",
				Source:      SourceChat,
				AuthorID:    "u-1",
				Body:        "help",
				Language:    LangKK,
				Priority:    PriorityHigh,
				IssueType:   IssueComplex,
				Status:      StatusClosed,
				CreatedAt:   now,
				ClosedAt:    &closed,
				SLADeadline: &deadline,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ticket.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPriorityBump(t *testing.T) {
	tests := []struct {
		in   Priority
		want Priority
	}{
		{PriorityLow, PriorityMedium},
		{PriorityMedium, PriorityHigh},
		{PriorityHigh, PriorityCritical},
		{PriorityCritical, PriorityCritical},
	}
	for _, tt := range tests {
		if got := tt.in.Bump(); got != tt.want {
			t.Errorf("Bump(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityLow.Rank() >= PriorityMedium.Rank() ||
		PriorityMedium.Rank() >= PriorityHigh.Rank() ||
		PriorityHigh.Rank() >= PriorityCritical.Rank() {
		t.Fatal("priority ranks must be strictly increasing")
	}
	if Priority("bogus").Rank() != PriorityMedium.Rank() {
		t.Error("unknown priorities should rank as medium")
	}
}

func TestEnumValidity(t *testing.T) {
	valid := []bool{
		StatusNew.IsValid(), StatusInWork.IsValid(), StatusWaiting.IsValid(),
		StatusAutoResolved.IsValid(), StatusClosed.IsValid(),
		IssueTypical.IsValid(), IssueSimple.IsValid(), IssueComplex.IsValid(),
		SourceEmail.IsValid(), SourceChat.IsValid(), SourcePortal.IsValid(), SourcePhone.IsValid(),
		LangRU.IsValid(), LangKK.IsValid(), LangEN.IsValid(),
		RoleClient.IsValid(), RoleEmployee.IsValid(), RoleAdmin.IsValid(),
		ActionCreated.IsValid(), ActionEscalated.IsValid(), ActionReopened.IsValid(),
		NotifyComment.IsValid(), NotifyAssigned.IsValid(),
	}
	for i, v := range valid {
		if !v {
			t.Errorf("constant %d reported invalid", i)
		}
	}
	invalid := []bool{
		Status("deleted").IsValid(),
		IssueType("weird").IsValid(),
		Source("telegram").IsValid(),
		Language("de").IsValid(),
		Role("root").IsValid(),
		HistoryAction("renamed").IsValid(),
		NotificationType("sms").IsValid(),
	}
	for i, v := range invalid {
		if v {
			t.Errorf("bogus value %d reported valid", i)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("ShortID = %q, want 01234567", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID should pass short ids through, got %q", got)
	}
}

func TestTerminalStatus(t *testing.T) {
	if !StatusClosed.IsTerminal() || !StatusAutoResolved.IsTerminal() {
		t.Error("closed and auto_resolved are terminal")
	}
	if StatusNew.IsTerminal() || StatusInWork.IsTerminal() || StatusWaiting.IsTerminal() {
		t.Error("open statuses are not terminal")
	}
}

func TestPatchIsZero(t *testing.T) {
	if !(TicketPatch{}).IsZero() {
		t.Error("empty patch should be zero")
	}
	s := StatusClosed
	if (TicketPatch{Status: &s}).IsZero() {
		t.Error("patch with a field should not be zero")
	}
}
