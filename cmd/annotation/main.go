// Package main starts the annotation timeline process.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	annotationcmd "github.com/lectureStudio/lectureStudio-sub005/internal/cmd/annotation"
)

func main() {
	cfg, err := annotationcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ANNOTATION] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := annotationcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("run annotation: %v", err)
	}
}
