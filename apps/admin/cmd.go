package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("not available on the in-memory database")
)

type commandLine struct {
	db     *sql.DB // nil on the in-memory database
	usrSvc *user.Service
	feeSvc *fee.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-admin] - add a user or reset their password")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL           - reset user's password")
	fmt.Fprintln(cli.out, "  report daily [-date YYYY-MM-DD]                  - print the collection of a day (today by default)")
	fmt.Fprintln(cli.out, "  report pending                                   - print the outstanding dues per class")
	fmt.Fprintln(cli.out, "  refresh-statuses                                 - mark late ledger rows as overdue")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Make the user a fee administrator (owner).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "report":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.report(args[2], args[3:])

	case "refresh-statuses":
		return cli.refreshStatuses()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
