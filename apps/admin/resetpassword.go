package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.AddOrUpdate(ctx, usr.Username, usr.Email, pwd, false)
	return err
}
