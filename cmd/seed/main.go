// Command seed provisions the role catalogue and the pre-provisioned
// employee account. It is idempotent and safe to run on every deploy.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
	mongodb "github.com/swiftportal/payments-portal/internal/infrastructure/db/mongo"
	"github.com/swiftportal/payments-portal/internal/infrastructure/security"
	"github.com/swiftportal/payments-portal/internal/pkg/config"
	"github.com/swiftportal/payments-portal/internal/pkg/validation"
	"github.com/swiftportal/payments-portal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: "payments-portal-seed"})

	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.WithoutCancel(ctx)) }()

	identities := mongodb.NewIdentityRepository(db)
	roles := mongodb.NewRoleRepository(db)
	if err := roles.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := identities.EnsureIndexes(ctx); err != nil {
		return err
	}

	hasher, err := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	s := seeder{roles: roles, employees: identities, hasher: hasher, validator: validation.New(), log: log}
	return s.run(ctx, cfg.Seed)
}

type roleUpserter interface {
	Upsert(ctx context.Context, role *domain.Role) (*domain.Role, error)
}

type employeeUpserter interface {
	UpsertEmployee(ctx context.Context, e *domain.Identity) (*domain.Identity, error)
}

type seeder struct {
	roles     roleUpserter
	employees employeeUpserter
	hasher    ports.SecretHasher
	validator *validation.Validator
	log       zerolog.Logger
}

type seedEmployee struct {
	EmployeeID string `json:"SEED_EMPLOYEE_ID" validate:"required,employeeid"`
	FullName   string `json:"SEED_EMPLOYEE_NAME" validate:"required,fullname"`
	Username   string `json:"SEED_EMPLOYEE_USERNAME" validate:"required,employeeusername"`
	Password   string `json:"SEED_EMPLOYEE_PASSWORD" validate:"required,password"`
}

func (s seeder) run(ctx context.Context, cfg config.SeedConfig) error {
	var employeeRole *domain.Role
	for _, role := range domain.DefaultRoles() {
		saved, err := s.roles.Upsert(ctx, &role)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
		s.log.Info().Str("role", string(saved.Name)).Strs("permissions", saved.PermissionStrings()).Msg("role upserted")
		if saved.Name == domain.RoleEmployee {
			employeeRole = saved
		}
	}
	if employeeRole == nil {
		return errors.New("seed: employee role missing from catalogue")
	}

	if cfg.EmployeePassword == "" {
		s.log.Warn().Msg("SEED_EMPLOYEE_PASSWORD not set, skipping employee")
		return nil
	}

	in := seedEmployee{
		EmployeeID: cfg.EmployeeID,
		FullName:   cfg.EmployeeName,
		Username:   validation.NormalizeUsername(cfg.EmployeeUsername),
		Password:   cfg.EmployeePassword,
	}
	if err := s.validator.Struct(in); err != nil {
		return fmt.Errorf("seed employee: %w", err)
	}
	if strength := validation.CheckPasswordStrength(in.Password); !strength.Strong {
		return fmt.Errorf("seed employee: %w", &domain.ValidationError{Feedback: strength.Feedback})
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return fmt.Errorf("seed employee: %w", err)
	}
	emp, err := s.employees.UpsertEmployee(ctx, &domain.Identity{
		Kind:        domain.KindEmployee,
		ExternalID:  in.EmployeeID,
		DisplayName: in.FullName,
		Username:    in.Username,
		SecretHash:  hash,
		RoleID:      employeeRole.ID,
		IsActive:    true,
	})
	if err != nil {
		return fmt.Errorf("seed employee: %w", err)
	}

	s.log.Info().Str("employee_id", emp.ExternalID).Str("username", emp.Username).Msg("employee upserted")
	return nil
}
