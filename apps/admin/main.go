package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/masomo-portals/apps/shared"
	"github.com/trezcool/masomo-portals/core"
	logsvc "github.com/trezcool/masomo-portals/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	stack, err := shared.NewStack(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	// start CLI
	var db *sql.DB
	if stack.DB != nil {
		db = stack.DB.DB
	}
	cli := commandLine{
		db:      db,
		usrSvc:  stack.UserSvc,
		authSvc: stack.AuthSvc,
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	_ = stack.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
