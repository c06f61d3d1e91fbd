package main

import "github.com/bryanchriswhite/taskstrip/cmd/taskstrip/commands"

func main() {
	commands.Execute()
}
