package main

import (
	"log"
	"os"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/storage/docstore/postgres"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up the document store
	store, db, err := pgstore.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// start CLI
	cli := commandLine{
		db:        db,
		store:     store,
		ledgerSvc: ledger.NewService(store, nil),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
