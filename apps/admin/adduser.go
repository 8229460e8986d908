package main

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/user"
)

// checkCredentials applies the provisioning rules (email format, password policy).
func (cli *commandLine) checkCredentials(email, pwd string) (string, error) {
	nu := user.NewUser{Email: email, Password: pwd}
	if err := nu.Validate(cli.validate); err != nil {
		return "", cli.describe(err)
	}
	return nu.Email, nil
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	email, err := cli.checkCredentials(email, pwd)
	if err != nil {
		return err
	}

	role := user.RoleStaff
	if isAdmin {
		role = user.RoleAdmin
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{Email: email, Role: role, CreatedAt: time.Now().UTC()}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	usr.Role = role
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}

// describe flattens validation errors into one line, e.g. "password: password cannot be entirely numeric".
func (cli *commandLine) describe(err error) error {
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		msgs = append(msgs, fe.Field()+": "+fe.Translate(cli.translator))
	}
	return errors.New(strings.Join(msgs, "; "))
}
