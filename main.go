package main

import "github.com/klytics/macrodoc/cmd"

func main() {
	cmd.Execute()
}
