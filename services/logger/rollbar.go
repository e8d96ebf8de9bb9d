package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/user"
)

var (
	setPersonFunc   = rollbar.SetPerson   // mockable
	clearPersonFunc = rollbar.ClearPerson // mockable
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// prepare turns args into rollbar arguments.
// expected fmt: msg | error, map[string]interface{}, *policy.Principal, user.User
//
// The request's principal becomes the Rollbar person, and its role, school and tier are merged into
// the custom data. A user.User only adds a username and an email to that person. Without an
// identified principal or user the person is cleared, so anonymous requests are never attributed.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		principal *policy.Principal
		usr       *user.User
		custom    map[string]interface{}
	)
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case *policy.Principal:
			if a != nil && a.ID != "" && principal == nil {
				principal = a
			}
		case user.User:
			if a.ID != "" && usr == nil {
				usr = &a
			}
		case map[string]interface{}:
			if custom == nil {
				custom = make(map[string]interface{}, len(a)+3)
			}
			for k, v := range a {
				custom[k] = v
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}

	switch {
	case principal != nil && usr != nil && usr.ID == principal.ID:
		setPersonFunc(principal.ID, usr.Username, usr.Email)
	case principal != nil:
		setPersonFunc(principal.ID, "", "")
	case usr != nil:
		setPersonFunc(usr.ID, usr.Username, usr.Email)
	default:
		clearPersonFunc()
	}

	if principal != nil {
		if custom == nil {
			custom = make(map[string]interface{}, 3)
		}
		custom["role"] = principal.Role.String()
		custom["school_id"] = principal.TenantID
		custom["subscription_tier"] = principal.Tier.String()
	}
	if custom != nil {
		newArgs = append(newArgs, custom)
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		if p, ok := arg.(*policy.Principal); ok {
			if p != nil {
				l.std.Printf("principal: id=%s role=%s school=%s tier=%s\n", p.ID, p.Role, p.TenantID, p.Tier)
			}
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}
