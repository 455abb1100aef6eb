package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/quarry-data/quarry/migrations"
	"github.com/quarry-data/quarry/pkg/configuration"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	conf := configuration.Use()
	defer conf.Unload()

	db, err := sql.Open("pgx", conf.Database.Opts)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set dialect: %v", err)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := goose.Run(command, db, ".", args...); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}
