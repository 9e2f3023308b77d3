package main

import "github.com/frahmantamala/settlement/cmd"

func main() {
	cmd.Execute()
}
