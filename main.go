package main

import "github.com/ces0157/usgs-data-tool/cmd"

func main() {
	cmd.Execute()
}
