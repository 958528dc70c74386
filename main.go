package main

import "sentiment-alerts/internal/cli"

func main() {
	cli.Execute()
}
