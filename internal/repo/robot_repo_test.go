package repo

import (
	"context"
	"errors"
	"testing"
)

func TestCreateRobot_NameUniqueAcrossOwners(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateRobot(ctx, db, "u1", "scalper", "m5 scalper"); err != nil {
		t.Fatalf("CreateRobot: %v", err)
	}
	if _, err := CreateRobot(ctx, db, "u1", "scalper", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same owner, same name: want ErrDuplicate, got %v", err)
	}
	if _, err := CreateRobot(ctx, db, "u2", "scalper", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("another owner, same name: want ErrDuplicate, got %v", err)
	}

	r, err := GetRobotByOwner(ctx, db, "u1", "scalper")
	if err != nil || r.Description != "m5 scalper" {
		t.Fatalf("GetRobotByOwner = %+v, %v", r, err)
	}
	if _, err := GetRobotByOwner(ctx, db, "u3", "scalper"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign owner: want ErrNotFound, got %v", err)
	}
}

func TestListRobots_OwnerScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		if _, err := CreateRobot(ctx, db, "u1", n, ""); err != nil {
			t.Fatalf("CreateRobot(%s): %v", n, err)
		}
	}
	_, _ = CreateRobot(ctx, db, "u2", "c", "")

	got, err := ListRobots(ctx, db, "u1")
	if err != nil || len(got) != 2 || got[0].Name != "a" {
		t.Fatalf("ListRobots = %+v, %v", got, err)
	}
}
