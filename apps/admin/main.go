package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/usage"
	logsvc "github.com/quizzq/backend/services/logger"
	"github.com/quizzq/backend/storage/database"
	sqlxrepos "github.com/quizzq/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(ctx)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	loc, err := time.LoadLocation(conf.Usage.Timezone)
	if err != nil {
		loc = time.UTC
	}
	usrRepo := sqlxrepos.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		meter: usage.NewMeter(usrRepo, usage.Policy{
			FreeDailyLimit:  conf.Usage.FreeDailyLimit,
			ProMonthlyLimit: conf.Usage.ProMonthlyLimit,
		}, loc),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
