package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/progrium/voice-sessions/devbot"
	"tractor.dev/toolkit-go/engine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	engine.Run(devbot.Service{})
}
