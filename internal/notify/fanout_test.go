package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/repository"
)

type fakeDirectory struct {
	recipients []repository.Recipient
	tokens     map[string]string
	cleared    []string
	listErr    error
}

func (f *fakeDirectory) NearbyRecipients(_ context.Context, _, _ float64, _ string) ([]repository.Recipient, error) {
	return f.recipients, f.listErr
}

func (f *fakeDirectory) PushTokenFor(_ context.Context, id string) (string, error) {
	return f.tokens[id], nil
}

func (f *fakeDirectory) ClearPushToken(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeDedup struct {
	seen     map[string]bool // "case|user|kind"
	recorded []string
	prior    []repository.Recipient
}

func dedupKey(caseID, userID, kind string) string { return caseID + "|" + userID + "|" + kind }

func (f *fakeDedup) Exists(_ context.Context, caseID, userID, kind string) (bool, error) {
	return f.seen[dedupKey(caseID, userID, kind)], nil
}

func (f *fakeDedup) Record(_ context.Context, caseID, userID, kind string) (bool, error) {
	f.recorded = append(f.recorded, dedupKey(caseID, userID, kind))
	return true, nil
}

func (f *fakeDedup) PriorRecipients(_ context.Context, _, _, _ string) ([]repository.Recipient, error) {
	return f.prior, nil
}

type fakePusher struct {
	sent   []string // tokens in send order
	errFor map[string]error
}

func (f *fakePusher) Send(_ context.Context, token string, _ Message) error {
	f.sent = append(f.sent, token)
	return f.errFor[token]
}

func newTestFanout(dir *fakeDirectory, dedup *fakeDedup, push *fakePusher) *Fanout {
	if dir.tokens == nil {
		dir.tokens = map[string]string{}
	}
	if dedup.seen == nil {
		dedup.seen = map[string]bool{}
	}
	if push.errFor == nil {
		push.errFor = map[string]error{}
	}
	return NewFanout(dir, dedup, push, nil)
}

func pendingCase() *model.RescueCase {
	return &model.RescueCase{
		ID:         "case-1",
		ReporterID: "reporter",
		Latitude:   28.6,
		Longitude:  77.2,
		Status:     model.StatusPending,
	}
}

func TestNewCaseSendsAndRecords(t *testing.T) {
	dir := &fakeDirectory{recipients: []repository.Recipient{
		{UserID: "v1", PushToken: "tok-1"},
		{UserID: "v2", PushToken: "tok-2"},
	}}
	dedup := &fakeDedup{}
	push := &fakePusher{}
	f := newTestFanout(dir, dedup, push)

	require.NoError(t, f.NewCase(context.Background(), pendingCase()))

	assert.Equal(t, []string{"tok-1", "tok-2"}, push.sent)
	assert.Equal(t, []string{
		dedupKey("case-1", "v1", model.KindNewRescue),
		dedupKey("case-1", "v2", model.KindNewRescue),
	}, dedup.recorded)
}

func TestNewCaseSkipsAlreadyNotified(t *testing.T) {
	dir := &fakeDirectory{recipients: []repository.Recipient{
		{UserID: "v1", PushToken: "tok-1"},
		{UserID: "v2", PushToken: "tok-2"},
	}}
	dedup := &fakeDedup{seen: map[string]bool{
		dedupKey("case-1", "v1", model.KindNewRescue): true,
	}}
	push := &fakePusher{}
	f := newTestFanout(dir, dedup, push)

	require.NoError(t, f.NewCase(context.Background(), pendingCase()))

	// v1 was already marked; only v2 gets a send and a new marker.
	assert.Equal(t, []string{"tok-2"}, push.sent)
	assert.Equal(t, []string{dedupKey("case-1", "v2", model.KindNewRescue)}, dedup.recorded)
}

func TestTransientFailureLeavesNoMarker(t *testing.T) {
	dir := &fakeDirectory{recipients: []repository.Recipient{
		{UserID: "v1", PushToken: "tok-1"},
	}}
	dedup := &fakeDedup{}
	push := &fakePusher{errFor: map[string]error{"tok-1": errors.New("fcm: status 503")}}
	f := newTestFanout(dir, dedup, push)

	require.NoError(t, f.NewCase(context.Background(), pendingCase()))

	// No marker means a later re-trigger will retry this recipient.
	assert.Empty(t, dedup.recorded)
	assert.Empty(t, dir.cleared)
}

func TestUnregisteredTokenIsCleared(t *testing.T) {
	dir := &fakeDirectory{recipients: []repository.Recipient{
		{UserID: "v1", PushToken: "dead-token"},
	}}
	dedup := &fakeDedup{}
	push := &fakePusher{errFor: map[string]error{"dead-token": ErrUnregistered}}
	f := newTestFanout(dir, dedup, push)

	require.NoError(t, f.NewCase(context.Background(), pendingCase()))

	assert.Equal(t, []string{"v1"}, dir.cleared)
	assert.Empty(t, dedup.recorded)
}

func TestCaseClaimedMutesPriorRecipients(t *testing.T) {
	// PriorRecipients already excludes the winner at the query level; the
	// fanout just sends the mute to whatever comes back.
	dir := &fakeDirectory{}
	dedup := &fakeDedup{prior: []repository.Recipient{
		{UserID: "v2", PushToken: "tok-2"},
		{UserID: "v3", PushToken: "tok-3"},
	}}
	push := &fakePusher{}
	f := newTestFanout(dir, dedup, push)

	require.NoError(t, f.CaseClaimed(context.Background(), "case-1", "v1"))

	assert.Equal(t, []string{"tok-2", "tok-3"}, push.sent)
	assert.Equal(t, []string{
		dedupKey("case-1", "v2", model.KindMute),
		dedupKey("case-1", "v3", model.KindMute),
	}, dedup.recorded)
}

func TestCaseClosedSkipsReporterActor(t *testing.T) {
	dir := &fakeDirectory{tokens: map[string]string{"reporter": "tok-r"}}
	dedup := &fakeDedup{}
	push := &fakePusher{}
	f := newTestFanout(dir, dedup, push)

	rc := pendingCase()
	rc.Status = model.StatusCancelled

	// Reporter cancelled their own case: no notification.
	require.NoError(t, f.CaseClosed(context.Background(), rc, "reporter"))
	assert.Empty(t, push.sent)

	// Somebody else resolved it: reporter gets the update.
	rc.Status = model.StatusResolved
	require.NoError(t, f.CaseClosed(context.Background(), rc, "v1"))
	assert.Equal(t, []string{"tok-r"}, push.sent)
	assert.Equal(t, []string{dedupKey("case-1", "reporter", model.KindCaseUpdate)}, dedup.recorded)
}

func TestCaseClosedWithoutTokenIsNoop(t *testing.T) {
	dir := &fakeDirectory{}
	dedup := &fakeDedup{}
	push := &fakePusher{}
	f := newTestFanout(dir, dedup, push)

	rc := pendingCase()
	rc.Status = model.StatusResolved
	require.NoError(t, f.CaseClosed(context.Background(), rc, "v1"))
	assert.Empty(t, push.sent)
}
