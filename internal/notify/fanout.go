package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/repository"
)

// Directory resolves fan-out audiences and maintains push tokens.
// Implemented by repository.ProfileRepo.
type Directory interface {
	NearbyRecipients(ctx context.Context, lat, lng float64, excludeID string) ([]repository.Recipient, error)
	PushTokenFor(ctx context.Context, id string) (string, error)
	ClearPushToken(ctx context.Context, id string) error
}

// DedupLog is the insert-only notification record store.  Implemented by
// repository.NotificationRepo.
type DedupLog interface {
	Exists(ctx context.Context, caseID, userID, kind string) (bool, error)
	Record(ctx context.Context, caseID, userID, kind string) (bool, error)
	PriorRecipients(ctx context.Context, caseID, kind, excludeID string) ([]repository.Recipient, error)
}

// Fanout computes notification audiences and drives the push transport.
// It always runs detached from the request that triggered it (on the
// queue consumer) and therefore reports failures only through logs and
// return values, never to the original caller.
//
// Delivery semantics: the dedup marker is written only after a confirmed
// send, so a crash or transient failure leaves the marker absent and a
// later re-trigger retries the send.  At most one marker ever exists per
// (case, user, kind); the send itself is at-least-once.
type Fanout struct {
	dir   Directory
	dedup DedupLog
	push  Pusher
	log   *zap.Logger
}

// NewFanout wires a Fanout.  All dependencies must be non-nil.
func NewFanout(dir Directory, dedup DedupLog, push Pusher, log *zap.Logger) *Fanout {
	if dir == nil || dedup == nil || push == nil {
		panic("nil dependency passed to NewFanout")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{dir: dir, dedup: dedup, push: push, log: log}
}

// NewCase alerts every rescuer-role profile whose own alert radius
// covers the case location, excluding the reporter.  Each candidate is
// checked against the dedup log first, so re-running the fan-out for the
// same case never double-sends.
func (f *Fanout) NewCase(ctx context.Context, c *model.RescueCase) error {
	recipients, err := f.dir.NearbyRecipients(ctx, c.Latitude, c.Longitude, c.ReporterID)
	if err != nil {
		return err
	}
	msg := NewRescueMessage(c.ID, c.Latitude, c.Longitude)
	for _, rec := range recipients {
		f.deliver(ctx, c.ID, rec, model.KindNewRescue, msg)
	}
	return nil
}

// CaseClaimed silently mutes everyone who received the new-case alert
// except the winner.  The audience comes from the dedup log itself: only
// users with a recorded new_rescue send are worth muting.
func (f *Fanout) CaseClaimed(ctx context.Context, caseID, winnerID string) error {
	recipients, err := f.dedup.PriorRecipients(ctx, caseID, model.KindNewRescue, winnerID)
	if err != nil {
		return err
	}
	msg := MuteMessage(caseID, winnerID)
	for _, rec := range recipients {
		f.deliver(ctx, caseID, rec, model.KindMute, msg)
	}
	return nil
}

// CaseClosed notifies the reporter about the terminal status.  Skipped
// when the reporter closed the case themselves.
func (f *Fanout) CaseClosed(ctx context.Context, c *model.RescueCase, actorID string) error {
	if actorID == c.ReporterID {
		return nil
	}
	token, err := f.dir.PushTokenFor(ctx, c.ReporterID)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	msg := CaseUpdateMessage(c.ID, string(c.Status))
	f.deliver(ctx, c.ID, repository.Recipient{UserID: c.ReporterID, PushToken: token}, model.KindCaseUpdate, msg)
	return nil
}

// deliver sends one message honoring the dedup contract: skip when a
// marker exists, record the marker only after a confirmed send, clear
// permanently dead tokens, and leave transient failures unrecorded so a
// future trigger can retry.
func (f *Fanout) deliver(ctx context.Context, caseID string, rec repository.Recipient, kind string, msg Message) {
	seen, err := f.dedup.Exists(ctx, caseID, rec.UserID, kind)
	if err != nil {
		f.log.Warn("fanout: dedup lookup failed",
			zap.String("case_id", caseID), zap.String("user_id", rec.UserID), zap.Error(err))
		return
	}
	if seen {
		return
	}

	if err := f.push.Send(ctx, rec.PushToken, msg); err != nil {
		if errors.Is(err, ErrUnregistered) {
			if clearErr := f.dir.ClearPushToken(ctx, rec.UserID); clearErr != nil {
				f.log.Warn("fanout: clearing dead token failed",
					zap.String("user_id", rec.UserID), zap.Error(clearErr))
			}
			return
		}
		f.log.Warn("fanout: push failed",
			zap.String("case_id", caseID), zap.String("user_id", rec.UserID),
			zap.String("kind", kind), zap.Error(err))
		return
	}

	if _, err := f.dedup.Record(ctx, caseID, rec.UserID, kind); err != nil {
		// The send went out but the marker is missing; a retry may send
		// once more, which the at-least-once contract allows.
		f.log.Warn("fanout: recording dedup marker failed",
			zap.String("case_id", caseID), zap.String("user_id", rec.UserID), zap.Error(err))
	}
}
