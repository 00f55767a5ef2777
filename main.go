package main

import (
	"clipstitch/cmd"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present
	cmd.Execute()
}
