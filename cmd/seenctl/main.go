package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"welcomebot/internal/irc"
	"welcomebot/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		db      string
		list    string
		add     bool
		channel string
		key     string
		count   bool
	)

	flag.StringVar(&db, "db", envOrDefault("WELCOMEBOT_DATABASE", ""), "path to the seen database")
	flag.StringVar(&list, "list", "", "list recorded identity keys for a channel")
	flag.BoolVar(&add, "add", false, "pre-seed an identity so it will not be greeted (requires -channel and -key)")
	flag.StringVar(&channel, "channel", "", "channel for -add")
	flag.StringVar(&key, "key", "", "identity key for -add (account name, or username@hostname)")
	flag.BoolVar(&count, "count", false, "print record counts per channel")
	flag.Parse()

	if db == "" {
		return fmt.Errorf("-db is required (or set WELCOMEBOT_DATABASE)")
	}

	modes := 0
	if list != "" {
		modes++
	}
	if add {
		modes++
	}
	if count {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of -list, -add, or -count is required")
	}

	store, err := sqlite.Open(db)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	// Store keys are casefolded; fold inputs the same way the bot does.
	// Networks using the ascii mapping differ only for []\^, which rarely
	// appear in account names.
	fold := irc.CasemapRFC1459.Fold

	switch {
	case list != "":
		keys, err := store.Keys(ctx, fold(list))
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}

	case add:
		if channel == "" || key == "" {
			return fmt.Errorf("-add requires -channel and -key")
		}
		inserted, err := store.InsertIfAbsent(ctx, fold(channel), fold(key))
		if err != nil {
			return err
		}
		if inserted {
			fmt.Printf("recorded %s in %s\n", fold(key), fold(channel))
		} else {
			fmt.Printf("%s already recorded in %s\n", fold(key), fold(channel))
		}

	case count:
		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		for _, cc := range counts {
			fmt.Printf("%s\t%d\n", cc.Channel, cc.Count)
		}
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
