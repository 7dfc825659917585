package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/seatbook/seatbook-backend/internal/app"
)

func main() {
	ctx := context.Background()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}

	err = a.Serve(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.Close(closeCtx); cerr != nil {
		a.Log.Warn("shutdown cleanup failed", "error", cerr)
	}
	if err != nil {
		a.Log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
