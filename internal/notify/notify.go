// Package notify expands domain events into per-recipient notifications.
//
// Builders return rows ready for insertion; persistence happens inside the
// calling transaction so the notifications commit atomically with the event
// that caused them. A notification is never addressed to the actor that
// caused the event.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/types"
)

// previewRunes caps the comment excerpt carried in notification bodies.
const previewRunes = 100

// TicketCreated notifies every admin except the ticket author.
func TicketCreated(t *types.Ticket, admins []*types.User, now time.Time) []*types.Notification {
	var out []*types.Notification
	for _, a := range admins {
		if a.ID == t.AuthorID {
			continue
		}
		out = append(out, build(a.ID, t.ID, types.NotifyTicketCreated,
			fmt.Sprintf("New ticket #%s", types.ShortID(t.ID)),
			Preview(t.Subject+" "+t.Body), now))
	}
	return out
}

// CommentAdded routes a new comment: client comments fan out to admins,
// staff comments go to the ticket author.
func CommentAdded(t *types.Ticket, sender *types.User, text string, admins []*types.User, now time.Time) []*types.Notification {
	var out []*types.Notification
	if sender.Role == types.RoleClient {
		for _, a := range admins {
			if a.ID == sender.ID {
				continue
			}
			out = append(out, build(a.ID, t.ID, types.NotifyComment,
				fmt.Sprintf("New comment in #%s", types.ShortID(t.ID)),
				Preview(text), now))
		}
		return out
	}
	if t.AuthorID == sender.ID {
		return nil
	}
	out = append(out, build(t.AuthorID, t.ID, types.NotifyAdminReply,
		fmt.Sprintf("Administrator replied to #%s", types.ShortID(t.ID)),
		Preview(text), now))
	return out
}

// TicketClosed notifies the author unless the author closed it themselves.
func TicketClosed(t *types.Ticket, actorID string, now time.Time) []*types.Notification {
	if t.AuthorID == actorID {
		return nil
	}
	return []*types.Notification{build(t.AuthorID, t.ID, types.NotifyTicketClosed,
		fmt.Sprintf("Ticket #%s closed", types.ShortID(t.ID)),
		"Your ticket has been closed.", now)}
}

// TicketEscalated notifies the author about an SLA-driven priority bump.
func TicketEscalated(t *types.Ticket, oldPriority, newPriority types.Priority, now time.Time) []*types.Notification {
	msg := fmt.Sprintf("Priority raised from %s to %s as the SLA deadline approaches.", oldPriority, newPriority)
	if oldPriority == newPriority {
		msg = fmt.Sprintf("Ticket remains at %s priority; the SLA deadline is approaching.", newPriority)
	}
	return []*types.Notification{build(t.AuthorID, t.ID, types.NotifyTicketUpdated,
		fmt.Sprintf("Ticket #%s escalated", types.ShortID(t.ID)), msg, now)}
}

// TicketAssigned notifies the new assignee unless they assigned themselves.
func TicketAssigned(t *types.Ticket, assigneeUserID, actorID string, now time.Time) []*types.Notification {
	if assigneeUserID == "" || assigneeUserID == actorID {
		return nil
	}
	return []*types.Notification{build(assigneeUserID, t.ID, types.NotifyAssigned,
		fmt.Sprintf("Ticket #%s assigned to you", types.ShortID(t.ID)),
		Preview(t.Subject+" "+t.Body), now)}
}

// Preview trims text to the notification excerpt length.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes])
}

func build(recipient, ticketID string, typ types.NotificationType, title, message string, now time.Time) *types.Notification {
	tid := ticketID
	return &types.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		TicketID:    &tid,
		Type:        typ,
		Title:       title,
		Message:     message,
		CreatedAt:   now,
	}
}
