package main

import "github.com/Mohsinsiddi/w3carbon/cmd"

func main() {
	cmd.Execute()
}
