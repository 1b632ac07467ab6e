package main

import "pubmed-graph/cmd"

func main() {
	cmd.Execute()
}
