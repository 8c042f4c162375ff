package main

import "github.com/telegate/telegate/cmd"

func main() {
	cmd.Execute()
}
