package main

import (
	"context"
	"fmt"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.SetPassword(ctx, uname, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("password of %s updated\n", usr.Username)
	return nil
}

func (cli *commandLine) createAdmin(ctx context.Context, nu user.NewUser) error {
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}
	usr, err := cli.usrSvc.CreateAdmin(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("admin %s created\n", usr.Username)
	return nil
}

func (cli *commandLine) activate(ctx context.Context, uname string) error {
	usr, err := cli.usrSvc.ActivateByUsername(ctx, uname)
	if err != nil {
		return err
	}
	fmt.Printf("%s activated\n", usr.Username)
	return nil
}
