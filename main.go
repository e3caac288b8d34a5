package main

import "holdings-sync/cmd"

func main() {
	cmd.Execute()
}
