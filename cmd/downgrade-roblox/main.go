package main

import "github.com/KirshWasHere/DowngradeRoblox/cmd/downgrade-roblox/cmd"

func main() {
	cmd.Execute()
}
