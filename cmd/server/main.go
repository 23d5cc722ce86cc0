package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/judwhite/go-svc"

	"github.com/Tyrowin/chatrelay/internal/daemon"
)

func main() {
	if err := svc.Run(daemon.New(), syscall.SIGINT, syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
