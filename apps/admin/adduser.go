package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

// addUser updates or creates a user.User. Superadmins belong to no school.
func (cli *commandLine) addUser(uname, email, pwd string, isSuperAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			Role:      policy.RoleMember,
			Tier:      usage.TierFree,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if isSuperAdmin {
		usr.Role = policy.RoleSuperAdmin
		usr.SchoolID = ""
	}
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return err
}
