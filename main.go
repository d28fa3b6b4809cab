package main

import (
	"fmt"
	"os"
)

const usage = "usage: wifispell <run|status|hear <word> [score]...|abort>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		logger, lerr := newLogger(cfg.Log, os.Stderr)
		if lerr != nil {
			err = lerr
			break
		}
		err = runDaemon(cfg, logger)
	case "status":
		err = runStatus(cfg.Daemon.Socket)
	case "hear":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wifispell hear <word> [score] [<word> [score]]...")
			os.Exit(1)
		}
		err = runHear(cfg.Daemon.Socket, os.Args[2:])
	case "abort":
		err = runAbort(cfg.Daemon.Socket)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
