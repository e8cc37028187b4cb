package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/functions"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

type fakeNotifier struct {
	sent []functions.InviteEmail
	err  error
}

func (f *fakeNotifier) SendInviteEmail(_ context.Context, msg functions.InviteEmail) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeDirectory map[string]bool

func (f fakeDirectory) UserExists(_ context.Context, email string) (bool, error) {
	return f[email], nil
}

type fakeLinker struct{ token string }

func (f fakeLinker) CreateShareLink(_ context.Context, _, _ string) (string, error) {
	return f.token, nil
}

type sharingFixture struct {
	svc      *SharingService
	clock    *fakeClock
	notifier *fakeNotifier
}

func newSharing(t *testing.T) sharingFixture {
	t.Helper()
	db := newServiceDB(t)
	seedRobot(t, db, owner, "alpha")
	seedProfile(t, db, owner, 0)
	seedProfile(t, db, ana, 0)

	clock := newClock()
	n := &fakeNotifier{}
	svc := NewSharingService(db,
		WithSharingClock(clock.Now),
		WithAppBaseURL("https://app.test/"),
		WithNotifier(n),
		WithDirectory(fakeDirectory{"ana@example.com": true}),
		WithShareLinker(fakeLinker{token: "tok-9"}),
	)
	return sharingFixture{svc: svc, clock: clock, notifier: n}
}

func TestSharing_Create(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, owner, "  alpha ", " Ana@Example.com ", domain.PermissionView)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	inv := res.Invite
	if inv.RobotName != "alpha" || inv.Email != "ana@example.com" || !inv.IsActive || inv.AcceptedAt != nil {
		t.Fatalf("unexpected invite: %+v", inv)
	}
	if want := f.clock.Now().Add(7 * 24 * time.Hour); !inv.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", inv.ExpiresAt, want)
	}
	if res.Link != "https://app.test/robots/alpha" || !res.EmailSent {
		t.Fatalf("result = %+v", res)
	}
	if res.RecipientRegistered == nil || !*res.RecipientRegistered {
		t.Fatalf("recipient should be reported as registered")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].InviterName != "owner@example.com" {
		t.Fatalf("notifications = %+v", f.notifier.sent)
	}

	grants, _ := repo.ListGrantsForRobot(ctx, f.svc.DB, "alpha")
	if len(grants) != 0 {
		t.Fatalf("creating an invite must not grant access")
	}
}

func TestSharing_CreateValidation(t *testing.T) {
	f := newSharing(t)
	cases := []struct {
		name   string
		issuer domain.Principal
		robot  string
		email  string
		perm   domain.Permission
		want   error
	}{
		{"empty robot", owner, "  ", "ana@example.com", domain.PermissionView, ErrEmptyRobotName},
		{"empty email", owner, "alpha", " ", domain.PermissionView, ErrEmptyEmail},
		{"malformed email", owner, "alpha", "not-an-email", domain.PermissionView, ErrInvalidEmail},
		{"bad permission", owner, "alpha", "ana@example.com", domain.Permission("admin"), ErrInvalidPermission},
		{"not owner", bob, "alpha", "ana@example.com", domain.PermissionEdit, ErrNotRobotOwner},
		{"unknown robot", owner, "beta", "ana@example.com", domain.PermissionEdit, ErrNotRobotOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.issuer, tc.robot, tc.email, tc.perm)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSharing_CreateSupersedes(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	f.clock.Advance(time.Minute)
	second, err := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionEdit)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	got, err := f.svc.CheckExisting(ctx, owner, "alpha", "ANA@example.com")
	if err != nil || got == nil || got.ID != second.Invite.ID {
		t.Fatalf("CheckExisting = %+v, %v; want second invite", got, err)
	}
	old, _ := repo.GetInvite(ctx, f.svc.DB, first.Invite.ID)
	if old.IsActive {
		t.Fatalf("superseded invite should be inactive")
	}
	if _, err := f.svc.Accept(ctx, ana, first.Invite.ID); !errors.Is(err, ErrInviteInactive) {
		t.Fatalf("accepting superseded invite: err = %v", err)
	}
}

func TestSharing_CreateMailFailureIsReported(t *testing.T) {
	f := newSharing(t)
	f.notifier.err = errors.New("smtp down")

	res, err := f.svc.Create(context.Background(), owner, "alpha", "new@example.com", domain.PermissionView)
	if err != nil {
		t.Fatalf("Create should succeed when mail fails: %v", err)
	}
	if res.EmailSent {
		t.Fatalf("EmailSent should be false")
	}
	if res.RecipientRegistered == nil || *res.RecipientRegistered {
		t.Fatalf("unregistered recipient should be reported as such")
	}
}

func TestSharing_CheckExistingBlankInput(t *testing.T) {
	f := newSharing(t)
	inv, err := f.svc.CheckExisting(context.Background(), bob, "", "ana@example.com")
	if inv != nil || err != nil {
		t.Fatalf("blank robot: %v, %v", inv, err)
	}
	inv, err = f.svc.CheckExisting(context.Background(), owner, "alpha", "nobody@example.com")
	if inv != nil || err != nil {
		t.Fatalf("no invite: %v, %v", inv, err)
	}
}

func TestSharing_AcceptCreatesGrant(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionEdit)

	g, err := f.svc.Accept(ctx, ana, res.Invite.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if g.RobotName != "alpha" || g.UserID != ana.UserID || g.Permission != domain.PermissionEdit || g.CreatedBy != owner.UserID {
		t.Fatalf("grant = %+v", g)
	}

	inv, _ := repo.GetInvite(ctx, f.svc.DB, res.Invite.ID)
	if inv.IsActive || inv.AcceptedAt == nil || inv.Status(f.clock.Now()) != domain.InviteStatusAccepted {
		t.Fatalf("invite after accept: %+v", inv)
	}
	if _, err := f.svc.Accept(ctx, ana, res.Invite.ID); !errors.Is(err, ErrInviteInactive) {
		t.Fatalf("second accept: err = %v", err)
	}

	shared, err := f.svc.ListGrants(ctx, ana)
	if err != nil || len(shared) != 1 {
		t.Fatalf("ListGrants = %v, %v", shared, err)
	}
}

func TestSharing_AcceptScopedToRecipient(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)

	if _, err := f.svc.Accept(ctx, bob, res.Invite.ID); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("other user's invite: err = %v", err)
	}
	if err := f.svc.Decline(ctx, bob, res.Invite.ID); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("other user's decline: err = %v", err)
	}
	if _, err := f.svc.Accept(ctx, ana, "missing"); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("missing invite: err = %v", err)
	}
}

func TestSharing_AcceptExpired(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)

	f.clock.Advance(8 * 24 * time.Hour)
	if _, err := f.svc.Accept(ctx, ana, res.Invite.ID); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("err = %v, want ErrInviteExpired", err)
	}
	if _, err := repo.GetGrant(ctx, f.svc.DB, "alpha", ana.UserID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired invite must not grant access")
	}
}

func TestSharing_Decline(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)

	if err := f.svc.Decline(ctx, ana, res.Invite.ID); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	inv, _ := repo.GetInvite(ctx, f.svc.DB, res.Invite.ID)
	if inv.IsActive || inv.AcceptedAt != nil {
		t.Fatalf("declined invite: %+v", inv)
	}
	if _, err := f.svc.Accept(ctx, ana, res.Invite.ID); !errors.Is(err, ErrInviteInactive) {
		t.Fatalf("accept after decline: err = %v", err)
	}
	if err := f.svc.Decline(ctx, ana, res.Invite.ID); !errors.Is(err, ErrInviteInactive) {
		t.Fatalf("second decline: err = %v", err)
	}
}

func TestSharing_RevokeRemovesGrant(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	if _, err := f.svc.Accept(ctx, ana, res.Invite.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if err := f.svc.Revoke(ctx, bob, res.Invite.ID); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("revoke by non-issuer: err = %v", err)
	}
	if err := f.svc.Revoke(ctx, owner, res.Invite.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := repo.GetGrant(ctx, f.svc.DB, "alpha", ana.UserID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("grant should be gone, err = %v", err)
	}
	if err := f.svc.Revoke(ctx, owner, res.Invite.ID); err != nil {
		t.Fatalf("revoke should be idempotent: %v", err)
	}
}

func TestSharing_RevokePendingForUnknownRecipient(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ghost@example.com", domain.PermissionView)

	if err := f.svc.Revoke(ctx, owner, res.Invite.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	inv, _ := repo.GetInvite(ctx, f.svc.DB, res.Invite.ID)
	if inv.IsActive {
		t.Fatalf("revoked invite should be inactive")
	}
}

func TestSharing_ReinviteUpdatesSingleGrant(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()

	first, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	if _, err := f.svc.Accept(ctx, ana, first.Invite.ID); err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	second, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionEdit)
	if _, err := f.svc.Accept(ctx, ana, second.Invite.ID); err != nil {
		t.Fatalf("second Accept: %v", err)
	}

	grants, err := f.svc.ListRobotGrants(ctx, owner, "alpha")
	if err != nil {
		t.Fatalf("ListRobotGrants: %v", err)
	}
	if len(grants) != 1 || grants[0].Permission != domain.PermissionEdit {
		t.Fatalf("grants = %+v, want one edit grant", grants)
	}
}

func TestSharing_Pending(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	seedRobot(t, f.svc.DB, owner, "beta")

	old, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	f.clock.Advance(6 * 24 * time.Hour)
	fresh, _ := f.svc.Create(ctx, owner, "beta", "ana@example.com", domain.PermissionEdit)

	got, err := f.svc.Pending(ctx, ana)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(got) != 2 || got[0].ID != fresh.Invite.ID || got[1].ID != old.Invite.ID {
		t.Fatalf("pending order = %+v", got)
	}
	if got[0].InviterEmail != "owner@example.com" {
		t.Fatalf("inviter email = %q", got[0].InviterEmail)
	}

	f.clock.Advance(2 * 24 * time.Hour)
	got, _ = f.svc.Pending(ctx, ana)
	if len(got) != 1 || got[0].ID != fresh.Invite.ID {
		t.Fatalf("expired invite should be filtered: %+v", got)
	}

	if got, _ := f.svc.Pending(ctx, bob); len(got) != 0 {
		t.Fatalf("bob has no invites: %+v", got)
	}
}

func TestSharing_ListForRobot(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		f.clock.Advance(time.Second)
		if _, err := f.svc.Create(ctx, owner, "alpha", e, domain.PermissionView); err != nil {
			t.Fatalf("Create(%s): %v", e, err)
		}
	}

	items, total, err := f.svc.ListForRobot(ctx, owner, "alpha", 1, 2)
	if err != nil || total != 3 || len(items) != 2 || items[0].Email != "c@example.com" {
		t.Fatalf("page 1 = %+v total=%d err=%v", items, total, err)
	}
	items, _, _ = f.svc.ListForRobot(ctx, owner, "alpha", 2, 2)
	if len(items) != 1 || items[0].Email != "a@example.com" {
		t.Fatalf("page 2 = %+v", items)
	}
	if _, _, err := f.svc.ListForRobot(ctx, bob, "alpha", 1, 10); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("non-owner list: err = %v", err)
	}

	n, ts, err := f.svc.InviteListVersion(ctx, "alpha")
	if err != nil || n != 3 || ts == nil {
		t.Fatalf("InviteListVersion = %d, %v, %v", n, ts, err)
	}
}

func TestSharing_RemoveGrant(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	_, _ = f.svc.Accept(ctx, ana, res.Invite.ID)

	if err := f.svc.RemoveGrant(ctx, bob, "alpha", ana.UserID); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("non-owner: err = %v", err)
	}
	if err := f.svc.RemoveGrant(ctx, owner, "alpha", ana.UserID); err != nil {
		t.Fatalf("RemoveGrant: %v", err)
	}
	if err := f.svc.RemoveGrant(ctx, owner, "alpha", ana.UserID); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("second removal: err = %v", err)
	}
}

func TestSharing_RobotNameOfAnotherOwner(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	mallory := domain.Principal{UserID: "mallory-1", Email: "mallory@example.com"}

	res, err := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Accept(ctx, ana, res.Invite.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	open, err := f.svc.Create(ctx, owner, "alpha", "bob@example.com", domain.PermissionEdit)
	if err != nil {
		t.Fatalf("Create for bob: %v", err)
	}

	robots := &RobotService{DB: f.svc.DB}
	if _, err := robots.Create(ctx, mallory, "alpha", ""); !errors.Is(err, ErrRobotExists) {
		t.Fatalf("registering a taken name: err = %v", err)
	}
	if _, _, err := f.svc.ListForRobot(ctx, mallory, "alpha", 1, 20); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("ListForRobot: err = %v", err)
	}
	if _, err := f.svc.ListRobotGrants(ctx, mallory, "alpha"); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("ListRobotGrants: err = %v", err)
	}
	if err := f.svc.RemoveGrant(ctx, mallory, "alpha", ana.UserID); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("RemoveGrant: err = %v", err)
	}
	if _, err := f.svc.Create(ctx, mallory, "alpha", "bob@example.com", domain.PermissionView); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("Create: err = %v", err)
	}

	grants, err := f.svc.ListGrants(ctx, ana)
	if err != nil || len(grants) != 1 || grants[0].CreatedBy != owner.UserID {
		t.Fatalf("ana's grants = %+v, %v", grants, err)
	}
	inv, err := f.svc.CheckExisting(ctx, owner, "alpha", "bob@example.com")
	if err != nil || inv == nil || inv.ID != open.Invite.ID {
		t.Fatalf("bob's invite = %+v, %v; want %s still active", inv, err, open.Invite.ID)
	}
}

func TestSharing_CreateShareLink(t *testing.T) {
	f := newSharing(t)
	link, err := f.svc.CreateShareLink(context.Background(), owner, "alpha", domain.PermissionView)
	if err != nil {
		t.Fatalf("CreateShareLink: %v", err)
	}
	if link.Token != "tok-9" || link.URL != "https://app.test/shared/tok-9" {
		t.Fatalf("link = %+v", link)
	}
	if _, err := f.svc.CreateShareLink(context.Background(), bob, "alpha", domain.PermissionView); !errors.Is(err, ErrNotRobotOwner) {
		t.Fatalf("non-owner: err = %v", err)
	}
}

func TestSharing_ExpireInvites(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()
	res, _ := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionView)

	if n, err := f.svc.ExpireInvites(ctx); err != nil || n != 0 {
		t.Fatalf("nothing to expire yet: %d, %v", n, err)
	}
	f.clock.Advance(7*24*time.Hour + time.Second)
	if n, err := f.svc.ExpireInvites(ctx); err != nil || n != 1 {
		t.Fatalf("ExpireInvites = %d, %v", n, err)
	}
	inv, _ := repo.GetInvite(ctx, f.svc.DB, res.Invite.ID)
	if inv.IsActive || inv.AcceptedAt != nil {
		t.Fatalf("expired invite = %+v", inv)
	}
}

func TestSharing_GetScopedToIssuer(t *testing.T) {
	f := newSharing(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, owner, "alpha", "ana@example.com", domain.PermissionEdit)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.svc.Get(ctx, owner, res.Invite.ID)
	if err != nil || got.ID != res.Invite.ID {
		t.Fatalf("Get by issuer: %v %+v", err, got)
	}
	if _, err := f.svc.Get(ctx, ana, res.Invite.ID); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("Get by recipient err = %v", err)
	}
	if _, err := f.svc.Get(ctx, owner, "missing"); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("Get missing err = %v", err)
	}
	if l := f.svc.Link("alpha"); l != "https://app.test/robots/alpha" {
		t.Fatalf("Link = %q", l)
	}
}
