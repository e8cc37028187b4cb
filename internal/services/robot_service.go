package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

// RobotService registers robots so they can be shared by name.
type RobotService struct {
	DB *gorm.DB
}

func robotTracer() trace.Tracer { return otel.Tracer("services/RobotService") }

// Create registers a robot owned by the caller.
func (s *RobotService) Create(ctx context.Context, owner domain.Principal, name, description string) (*domain.Robot, error) {
	ctx, span := robotTracer().Start(ctx, "Create", trace.WithAttributes(
		attribute.String("user.id", owner.UserID),
		attribute.String("robot.name", name),
	))
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRobotName
	}
	r, err := repo.CreateRobot(ctx, s.DB, owner.UserID, name, strings.TrimSpace(description))
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrRobotExists
	}
	if err != nil {
		return nil, fmt.Errorf("robots: create: %w", err)
	}
	return r, nil
}

// List returns the caller's robots, oldest first.
func (s *RobotService) List(ctx context.Context, owner domain.Principal) ([]domain.Robot, error) {
	ctx, span := robotTracer().Start(ctx, "List")
	defer span.End()
	return repo.ListRobots(ctx, s.DB, owner.UserID)
}
