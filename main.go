package main

import "github.com/wryfox/localsend-go/cmd"

func main() {
	cmd.Execute()
}
