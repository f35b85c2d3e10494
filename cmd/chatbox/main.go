// Command chatbox is a terminal client for a chat-completion endpoint.
package main

import "github.com/diogo/chatbox/internal/commands"

func main() {
	commands.Execute()
}
