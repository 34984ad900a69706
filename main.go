package main

import "github.com/nextlevelbuilder/halo/cmd"

func main() {
	cmd.Execute()
}
