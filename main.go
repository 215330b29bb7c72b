package main

import "github.com/hookrelay/webhook-relay/cmd"

func main() {
	cmd.Execute()
}
