package main

import "github.com/killallgit/composer/cmd"

func main() {
	cmd.Execute()
}
