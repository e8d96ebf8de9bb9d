// Package testutil holds the fixtures shared by the API and admin CLI tests.
package testutil

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

// StdLogger is a core.Logger writing to stdout, for tests.
type StdLogger struct {
	*log.Logger
}

func NewStdLogger(prefix string) StdLogger {
	return StdLogger{log.New(os.Stdout, prefix, log.LstdFlags)}
}

func (l StdLogger) Debug(msg string, _ ...interface{}) { l.Println(msg) }
func (l StdLogger) Info(msg string, _ ...interface{})  { l.Println(msg) }
func (l StdLogger) Warn(msg string, _ ...interface{})  { l.Println(msg) }
func (l StdLogger) Error(msg string, _ ...interface{}) { l.Println(msg) }
func (l StdLogger) Fatal(msg string, _ ...interface{}) { l.Fatalln(msg) }

// UserFixture describes a user to create. Zero values get sensible defaults.
type UserFixture struct {
	Name      string
	Username  string
	Email     string
	Password  string
	Role      policy.Role
	SchoolID  string
	Tier      usage.Tier
	Inactive  bool
	CreatedAt time.Time
}

func CreateUser(t *testing.T, repo user.Repository, fx UserFixture) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if !fx.CreatedAt.IsZero() {
		tstamp = fx.CreatedAt.UTC()
	}
	if fx.Role == "" {
		fx.Role = policy.RoleMember
	}
	if fx.Tier == "" {
		fx.Tier = usage.TierFree
	}
	usr := user.User{
		Name:      fx.Name,
		Username:  fx.Username,
		Email:     fx.Email,
		Role:      fx.Role,
		SchoolID:  fx.SchoolID,
		Tier:      fx.Tier,
		IsActive:  !fx.Inactive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if fx.Password != "" {
		if err := usr.SetPassword(fx.Password); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSchool(t *testing.T, repo school.Repository, name string) school.School {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateSchool(context.Background(), school.School{Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return s
}

func CreateClass(t *testing.T, repo school.Repository, schoolID, teacherID, name string) school.Class {
	t.Helper()

	c, err := repo.CreateClass(context.Background(), school.Class{
		SchoolID:  schoolID,
		TeacherID: teacherID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return c
}

// ConsumeN records n AI uses for usr.
func ConsumeN(t *testing.T, meter *usage.Meter, usr user.User, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if _, err := meter.Consume(context.Background(), usr.ID, usr.Tier); err != nil {
			t.Fatalf("ConsumeN() failed at %d: %v", i, err)
		}
	}
}
