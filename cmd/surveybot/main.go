package main

import (
	"os"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
