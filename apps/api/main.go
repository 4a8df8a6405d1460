package main

import (
	"log"
	"os"

	"github.com/kudatec/karo/apps/api/echo"
	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
	"github.com/kudatec/karo/services/email"
	"github.com/kudatec/karo/services/logger"
	"github.com/kudatec/karo/services/zbpay"
	"github.com/kudatec/karo/storage/docstore"
	"github.com/kudatec/karo/storage/docstore/inmem"
	"github.com/kudatec/karo/storage/docstore/postgres"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!core.Conf.Debug)
	defer logger.Wait()

	// set up the document store
	var store docstore.Store
	if core.Conf.Debug {
		store = inmemstore.Open()
	} else {
		var err error
		store, _, err = pgstore.Open(core.Conf)
		if err != nil {
			std.Fatal(err)
		}
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	ledgerSvc := ledger.NewService(store, mailSvc)
	paymentSvc := payments.NewService(store, zbpaysvc.NewClient(core.Conf))

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:       core.Conf.Addr(),
			LedgerSvc:  ledgerSvc,
			PaymentSvc: paymentSvc,
			Logger:     logger,
		},
	)
	app.Start()
}
