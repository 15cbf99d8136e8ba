package main

import "communitychat/internal/cli"

func main() {
	cli.Execute()
}
