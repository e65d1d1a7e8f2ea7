package main

import "github.com/aussiebroadwan/authkit/cmd/authkit/cmd"

func main() {
	cmd.Execute()
}
