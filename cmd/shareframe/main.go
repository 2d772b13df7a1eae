package main

import "github.com/bryanchriswhite/ShareFrame/cmd/shareframe/commands"

func main() {
	commands.Execute()
}
