package main

import "openelis-alert/cmd/openelis-alert/cmd"

func main() {
	cmd.Execute()
}
