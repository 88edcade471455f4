package main

import (
	"context"

	"academia-backend/cmd/academia-cli/commands"
	"academia-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "academia-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
