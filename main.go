package main

import "github.com/DominicWuest/seqgen/cmd"

func main() {
	cmd.Execute()
}
