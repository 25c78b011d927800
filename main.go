package main

import "github.com/KaramelBytes/dashspec-cli/cmd"

func main() {
	cmd.Execute()
}
