package services

import (
	"context"
	"errors"
	"testing"
)

func TestRobotService_Create(t *testing.T) {
	svc := &RobotService{DB: newServiceDB(t)}
	ctx := context.Background()

	r, err := svc.Create(ctx, owner, "  trend-follower ", " h1 ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Name != "trend-follower" || r.Description != "h1" || r.UserID != owner.UserID {
		t.Fatalf("robot = %+v", r)
	}
	if _, err := svc.Create(ctx, owner, "trend-follower", ""); !errors.Is(err, ErrRobotExists) {
		t.Fatalf("duplicate: err = %v", err)
	}
	if _, err := svc.Create(ctx, owner, "   ", ""); !errors.Is(err, ErrEmptyRobotName) {
		t.Fatalf("blank name: err = %v", err)
	}

	list, err := svc.List(ctx, owner)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if list, _ := svc.List(ctx, bob); len(list) != 0 {
		t.Fatalf("bob owns nothing: %+v", list)
	}
}
