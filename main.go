package main

import "livestream-chat/cmd"

func main() {
	cmd.Execute()
}
