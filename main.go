package main

import "github.com/jjenkins/lprwatch/cmd"

func main() {
	cmd.Execute()
}
