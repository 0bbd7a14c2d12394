package main

import "github.com/gilchrisn/influence-seeding/cmd"

func main() {
	cmd.Execute()
}
