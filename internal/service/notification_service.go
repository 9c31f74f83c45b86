package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

// NotificationService translates state-machine transitions into outbox rows.
// It never sends mail itself and never fails the calling operation: blank
// addresses are skipped and enqueue errors are logged and dropped.
type NotificationService struct {
	outbox OutboxSink
	log    zerolog.Logger
}

// NewNotificationService creates a notification service.
func NewNotificationService(outbox OutboxSink, log zerolog.Logger) *NotificationService {
	return &NotificationService{outbox: outbox, log: log}
}

// OnInitiated notifies the initiator that submission succeeded and the first
// approver that action is required.
func (n *NotificationService) OnInitiated(ctx context.Context, req *repository.FundRequest, initiator *repository.User, approver *ResolvedApprover) {
	if initiator != nil {
		n.enqueue(ctx, initiator.Email,
			fmt.Sprintf("Fund request submitted: %s", req.Title),
			fmt.Sprintf("<p>Your fund request <b>%s</b> (amount %d) has been submitted and is awaiting approval.</p>", req.Title, req.Amount))
	}
	if approver != nil {
		n.enqueue(ctx, approver.Email,
			fmt.Sprintf("Approval required: %s", req.Title),
			fmt.Sprintf("<p>Fund request <b>%s</b> is awaiting your approval at level %d.</p>", req.Title, req.CurrentLevel))
	}
}

// OnStepApproved notifies the next approver in the chain.
func (n *NotificationService) OnStepApproved(ctx context.Context, req *repository.FundRequest, level int, nextApprover *ResolvedApprover) {
	if nextApprover == nil {
		return
	}
	n.enqueue(ctx, nextApprover.Email,
		fmt.Sprintf("Approval required: %s", req.Title),
		fmt.Sprintf("<p>Fund request <b>%s</b> has advanced to level %d and is awaiting your approval.</p>", req.Title, level))
}

// OnRejected notifies the initiator with the rejection reason.
func (n *NotificationService) OnRejected(ctx context.Context, req *repository.FundRequest, initiator *repository.User, reason string) {
	if initiator == nil {
		return
	}
	n.enqueue(ctx, initiator.Email,
		fmt.Sprintf("Fund request rejected: %s", req.Title),
		fmt.Sprintf("<p>Your fund request <b>%s</b> was rejected.</p><p>Reason: %s</p>", req.Title, reason))
}

// OnSentBack notifies the initiator that the request needs rework.
func (n *NotificationService) OnSentBack(ctx context.Context, req *repository.FundRequest, initiator *repository.User, comment *string) {
	if initiator == nil {
		return
	}
	body := fmt.Sprintf("<p>Your fund request <b>%s</b> was sent back for changes. You may edit and resubmit it.</p>", req.Title)
	if comment != nil && strings.TrimSpace(*comment) != "" {
		body += fmt.Sprintf("<p>Comment: %s</p>", *comment)
	}
	n.enqueue(ctx, initiator.Email,
		fmt.Sprintf("Fund request sent back: %s", req.Title), body)
}

// OnFinalApproved fans out one message per resolved final receiver.
func (n *NotificationService) OnFinalApproved(ctx context.Context, req *repository.FundRequest, receivers []*repository.User) {
	for _, recv := range receivers {
		n.enqueue(ctx, recv.Email,
			fmt.Sprintf("Fund request approved: %s", req.Title),
			fmt.Sprintf("<p>Fund request <b>%s</b> (amount %d) has completed its approval chain and is assigned to you as a final receiver.</p>", req.Title, req.Amount))
	}
}

// enqueue appends one message, skipping blank addresses. Best-effort fan-out:
// failures are logged, never propagated.
func (n *NotificationService) enqueue(ctx context.Context, toAddress, subject, htmlBody string) {
	if strings.TrimSpace(toAddress) == "" {
		n.log.Debug().Str("subject", subject).Msg("Notification skipped: blank email address")
		return
	}
	if err := n.outbox.Enqueue(ctx, toAddress, subject, htmlBody, nil); err != nil {
		n.log.Warn().Err(err).
			Str("to", toAddress).
			Str("subject", subject).
			Msg("Failed to enqueue notification (non-fatal)")
	}
}
