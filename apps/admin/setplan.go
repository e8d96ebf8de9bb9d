package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

var errInvalidTier = errors.New("tier must be one of: free, pro, forever")

// setPlan moves a user to another subscription tier and, unless keepUsage, gives them a fresh quota.
func (cli *commandLine) setPlan(uname, tierStr string, keepUsage bool) error {
	tier, ok := usage.ParseTier(tierStr)
	if !ok {
		return errInvalidTier
	}

	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
	if err != nil {
		return err
	}
	if usr, err = cli.usrRepo.SetSubscriptionTier(ctx, usr.ID, tier); err != nil {
		return errors.Wrap(err, "setting subscription tier")
	}

	if !keepUsage {
		if _, err = cli.meter.Reset(ctx, usr.ID, usr.Tier); err != nil {
			return errors.Wrap(err, "resetting usage")
		}
	}
	fmt.Printf("%s is now on the %s plan\n", usr.Username, usr.Tier)
	return nil
}
