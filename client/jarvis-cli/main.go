package main

import "Jarvis_RAG/client/jarvis-cli/cmd"

func main() {
	cmd.Execute()
}
