package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/storage/docstore"
	"github.com/kudatec/karo/storage/docstore/postgres"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	store     docstore.Store
	ledgerSvc *ledger.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate                       - create the document store schema")
	fmt.Println("  createadmin -username U       - create an admin credential record; password is prompted")
	fmt.Println("  activateterm -key 2026_T1     - activate a term and bill all students")
	fmt.Println("  seedfees -file schedule.json  - load the fee schedule and rebill all students")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ExitOnError)
	createAdminUname := createAdminCmd.String("username", "", "The admin's username. The password will be prompted next.")

	activateTermCmd := flag.NewFlagSet("activateterm", flag.ExitOnError)
	activateTermKey := activateTermCmd.String("key", "", "The term key, e.g. 2026_T1.")

	seedFeesCmd := flag.NewFlagSet("seedfees", flag.ExitOnError)
	seedFeesFile := seedFeesCmd.String("file", "", "Path to a JSON fee schedule.")

	switch args[1] {
	case "migrate":
		return pgstore.Migrate(cli.db)

	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createAdminUname == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createAdminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(*createAdminUname, string(pwd))

	case "activateterm":
		if err := activateTermCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateTermKey == "" {
			activateTermCmd.Usage()
			return errHelp
		}
		return cli.activateTerm(*activateTermKey)

	case "seedfees":
		if err := seedFeesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFeesFile == "" {
			seedFeesCmd.Usage()
			return errHelp
		}
		return cli.seedFees(*seedFeesFile)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createAdmin(username, pwd string) error {
	usr, err := cli.ledgerSvc.CreateStaff(context.Background(), username, pwd, ledger.RoleAdmin)
	if err != nil {
		return err
	}
	logger.Printf("admin %q created (id %s)", usr.Username, usr.ID)
	return nil
}

func (cli *commandLine) activateTerm(key string) error {
	billed, err := cli.ledgerSvc.ActivateTerm(context.Background(), ledger.TermActivation{Key: key})
	if err != nil {
		return err
	}
	logger.Printf("term %s activated; %d students billed", key, billed)
	return nil
}

func (cli *commandLine) seedFees(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var schedule ledger.FeeSchedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return err
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	rebilled, err := cli.ledgerSvc.UpdateFeeSchedule(context.Background(), schedule, "admin-cli")
	if err != nil {
		return err
	}
	logger.Printf("fee schedule loaded; %d students rebilled", rebilled)
	return nil
}
