package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

type fakeRemote struct {
	deleted []string
	added   map[string]int64
	err     error
}

func (f *fakeRemote) DeleteUser(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) AddTokens(_ context.Context, email string, amount int64) error {
	if f.err != nil {
		return f.err
	}
	if f.added == nil {
		f.added = map[string]int64{}
	}
	f.added[email] += amount
	return nil
}

var boss = domain.Principal{UserID: "boss-1", Email: "Boss@Example.com"}

func newAccounts(t *testing.T) (*AccountService, *fakeRemote) {
	t.Helper()
	db := newServiceDB(t)
	seedProfile(t, db, ana, 1500)
	r := &fakeRemote{}
	return &AccountService{DB: db, Remote: r, AdminEmails: []string{"boss@example.com"}}, r
}

func TestAccount_EnsureProfileAndBalance(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()

	if _, err := svc.Balance(ctx, bob); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown profile: err = %v", err)
	}
	p, err := svc.EnsureProfile(ctx, domain.Principal{UserID: bob.UserID, Email: " BOB@example.com "})
	if err != nil || p.Email != "bob@example.com" {
		t.Fatalf("EnsureProfile = %+v, %v", p, err)
	}
	if bal, err := svc.Balance(ctx, bob); err != nil || bal != 0 {
		t.Fatalf("new balance = %d, %v", bal, err)
	}
	if bal, _ := svc.Balance(ctx, ana); bal != 1500 {
		t.Fatalf("ana balance = %d", bal)
	}
}

func TestAccount_Debit(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()

	if err := svc.Debit(ctx, ana, 1000); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if err := svc.Debit(ctx, ana, 1000); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("overdraft: err = %v", err)
	}
	if err := svc.Debit(ctx, ana, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero: err = %v", err)
	}
	if bal, _ := svc.Balance(ctx, ana); bal != 500 {
		t.Fatalf("balance = %d, want 500", bal)
	}
}

func TestAccount_IsAdmin(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()

	if ok, _ := svc.IsAdmin(ctx, boss); !ok {
		t.Fatalf("allow-listed email should be admin")
	}
	if ok, _ := svc.IsAdmin(ctx, ana); ok {
		t.Fatalf("ana is not an admin")
	}
	if err := svc.DB.Model(&domain.Profile{}).Where("id = ?", ana.UserID).Update("is_admin", true).Error; err != nil {
		t.Fatalf("flag admin: %v", err)
	}
	if ok, _ := svc.IsAdmin(ctx, ana); !ok {
		t.Fatalf("profile flag should grant admin")
	}
}

func TestAccount_GrantTokens(t *testing.T) {
	svc, remote := newAccounts(t)
	ctx := context.Background()

	if err := svc.GrantTokens(ctx, bob, "ana@example.com", 10); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin: err = %v", err)
	}
	for _, tc := range []struct {
		email  string
		amount int64
		want   error
	}{
		{"ana@example.com", 0, ErrInvalidAmount},
		{"ana@example.com", -5, ErrInvalidAmount},
		{"", 10, ErrEmptyEmail},
		{"nope", 10, ErrInvalidEmail},
	} {
		if err := svc.GrantTokens(ctx, boss, tc.email, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("GrantTokens(%q, %d) = %v, want %v", tc.email, tc.amount, err, tc.want)
		}
	}

	if err := svc.GrantTokens(ctx, boss, "ANA@example.com", 500); err != nil {
		t.Fatalf("local credit: %v", err)
	}
	if bal, _ := svc.Balance(ctx, ana); bal != 2000 {
		t.Fatalf("balance = %d, want 2000", bal)
	}

	if err := svc.GrantTokens(ctx, boss, "remote@example.com", 300); err != nil {
		t.Fatalf("remote credit: %v", err)
	}
	if remote.added["remote@example.com"] != 300 {
		t.Fatalf("remote calls = %+v", remote.added)
	}

	svc.Remote = nil
	if err := svc.GrantTokens(ctx, boss, "ghost@example.com", 1); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("no remote: err = %v", err)
	}
}

func TestAccount_DeleteUser(t *testing.T) {
	svc, remote := newAccounts(t)
	ctx := context.Background()
	seedRobot(t, svc.DB, owner, "alpha")
	if _, err := repo.UpsertGrant(ctx, svc.DB, &domain.SharedRobot{ID: "g1", RobotName: "alpha", UserID: ana.UserID, Permission: domain.PermissionView, CreatedBy: owner.UserID}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	if err := svc.DeleteUser(ctx, ana, ana.UserID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin: err = %v", err)
	}
	if err := svc.DeleteUser(ctx, boss, ana.UserID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(remote.deleted) != 1 || remote.deleted[0] != ana.UserID {
		t.Fatalf("remote deletions = %v", remote.deleted)
	}
	if _, err := repo.GetProfile(ctx, svc.DB, ana.UserID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("profile should be gone: %v", err)
	}
	if grants, _ := repo.ListGrantsForUser(ctx, svc.DB, ana.UserID); len(grants) != 0 {
		t.Fatalf("grants should be gone: %+v", grants)
	}
}

func TestAccount_DeleteUserRemoteFailureKeepsLocalData(t *testing.T) {
	svc, remote := newAccounts(t)
	remote.err = errors.New("boom")
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, boss, ana.UserID); err == nil {
		t.Fatalf("expected remote failure to surface")
	}
	if _, err := repo.GetProfile(ctx, svc.DB, ana.UserID); err != nil {
		t.Fatalf("profile must survive a failed remote delete: %v", err)
	}
}
