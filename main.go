package main

import "portfolio-persist/cmd"

func main() {
	cmd.Execute()
}
