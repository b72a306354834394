package main

import "github.com/JohnPlummer/jobpilot/internal/cli"

func main() {
	cli.Execute()
}
